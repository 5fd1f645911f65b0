package api

import "errors"

var (
	ErrAuthFailed  = errors.New("upstream rejected access key")
	ErrRateLimited = errors.New("rate limited by upstream API")
	ErrServer      = errors.New("upstream server error")
)
