package probe

import "errors"

// Failure kinds. A FAILED Result carries one of these (wrapped around the
// underlying cause) in Result.Err.
var (
	ErrInvalidTarget          = errors.New("invalid target")
	ErrConnectFailed          = errors.New("connect failed")
	ErrHandshakeFailed        = errors.New("tls handshake failed")
	ErrNoPeerCertificate      = errors.New("no peer certificate")
	ErrCertificateParseFailed = errors.New("certificate parse failed")
)

// errSelfSigned is returned from connection verification; it ends up wrapped
// in ErrHandshakeFailed.
var errSelfSigned = errors.New("self-signed leaf certificate")
