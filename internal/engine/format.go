package engine

// Format normalizes a raw operation payload into the upstream wire
// shape for its kind. Unknown kinds pass through unchanged so newer
// clients are not failed closed. Pure function.
func Format(kind Kind, contentType string, raw map[string]any) map[string]any {
	switch kind {
	case KindMove:
		return map[string]any{
			"sourcePath":      raw["sourcePath"],
			"destinationPath": raw["destinationPath"],
			"fileName":        raw["fileName"],
			"contentType":     contentType,
			"isThumbnail":     boolOr(raw["isThumbnail"], false),
			"seqNumber":       raw["seqNumber"],
		}
	case KindCaption:
		return map[string]any{
			"fileName":    raw["fileName"],
			"caption":     raw["caption"],
			"contentType": contentType,
		}
	case KindReorder:
		return map[string]any{
			"files": formatFiles(raw["files"]),
		}
	default:
		return raw
	}
}

// formatFiles normalizes a reorder file list. Order is significant: it
// encodes the new display sequence and is preserved exactly as given.
func formatFiles(v any) []map[string]any {
	files := toList(v)
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"fileName":    f["fileName"],
			"seqNumber":   f["seqNumber"],
			"isThumbnail": boolOr(f["isThumbnail"], false),
		})
	}
	return out
}

func toList(v any) []map[string]any {
	switch files := v.(type) {
	case []map[string]any:
		return files
	case []any:
		out := make([]map[string]any, 0, len(files))
		for _, f := range files {
			if m, ok := f.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func boolOr(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}
