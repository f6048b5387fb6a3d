package chainadapter

import "errors"

var (
	errInvalidSignatureLength = errors.New("chainadapter: signature must be 65 bytes")
	errUnknownLogTopic        = errors.New("chainadapter: unrecognized event topic")
)
