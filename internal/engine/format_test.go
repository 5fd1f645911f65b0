package engine

import (
	"reflect"
	"testing"
)

func TestFormatMove(t *testing.T) {
	raw := map[string]any{
		"sourcePath":      "/stories/2024",
		"destinationPath": "/archive/2024",
		"fileName":        "a.png",
	}

	got := Format(KindMove, "STORIES", raw)

	want := map[string]any{
		"sourcePath":      "/stories/2024",
		"destinationPath": "/archive/2024",
		"fileName":        "a.png",
		"contentType":     "STORIES",
		"isThumbnail":     false,
		"seqNumber":       nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected move payload:\ngot  %#v\nwant %#v", got, want)
	}
}

func TestFormatMove_ExplicitDefaults(t *testing.T) {
	raw := map[string]any{
		"sourcePath":      "/x",
		"destinationPath": "/y",
		"fileName":        "thumb.png",
		"isThumbnail":     true,
		"seqNumber":       7,
	}

	got := Format(KindMove, "SPOTLIGHT", raw)

	if got["isThumbnail"] != true {
		t.Errorf("expected isThumbnail true, got %v", got["isThumbnail"])
	}
	if got["seqNumber"] != 7 {
		t.Errorf("expected seqNumber 7, got %v", got["seqNumber"])
	}
}

func TestFormatCaption(t *testing.T) {
	got := Format(KindCaption, "STORIES", map[string]any{
		"fileName": "a.png",
		"caption":  "hi",
		"junk":     "dropped",
	})

	want := map[string]any{
		"fileName":    "a.png",
		"caption":     "hi",
		"contentType": "STORIES",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected caption payload:\ngot  %#v\nwant %#v", got, want)
	}
}

func TestFormatReorder_PreservesOrder(t *testing.T) {
	raw := map[string]any{
		"files": []any{
			map[string]any{"fileName": "c.png", "seqNumber": 0},
			map[string]any{"fileName": "a.png", "seqNumber": 1, "isThumbnail": true},
			map[string]any{"fileName": "b.png", "seqNumber": 2},
		},
	}

	got := Format(KindReorder, "STORIES", raw)

	files, ok := got["files"].([]map[string]any)
	if !ok {
		t.Fatalf("expected files list, got %T", got["files"])
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}

	order := []string{"c.png", "a.png", "b.png"}
	for i, name := range order {
		if files[i]["fileName"] != name {
			t.Errorf("position %d: expected %s, got %v", i, name, files[i]["fileName"])
		}
	}
	if files[0]["isThumbnail"] != false {
		t.Errorf("expected default isThumbnail false, got %v", files[0]["isThumbnail"])
	}
	if files[1]["isThumbnail"] != true {
		t.Errorf("expected isThumbnail true, got %v", files[1]["isThumbnail"])
	}
}

func TestFormatUnknownKind_PassThrough(t *testing.T) {
	raw := map[string]any{"anything": "goes", "nested": map[string]any{"deep": 1}}

	got := Format(Kind("rename"), "STORIES", raw)

	if !reflect.DeepEqual(got, raw) {
		t.Errorf("unknown kind must pass payload through unchanged, got %#v", got)
	}
}

func TestFormat_Deterministic(t *testing.T) {
	raw := map[string]any{
		"sourcePath":      "/x",
		"destinationPath": "/y",
		"fileName":        "a.png",
	}

	first := Format(KindMove, "STORIES", raw)
	second := Format(KindMove, "STORIES", raw)

	if !reflect.DeepEqual(first, second) {
		t.Error("Format must be pure: same input, same output")
	}
}
