package httpapi

import "errors"

var (
	errMissingQueryParams = errors.New("httpapi: symbol and period query parameters are required")
	errStreamingDisabled  = errors.New("httpapi: websocket streaming is disabled in this deployment")
)
