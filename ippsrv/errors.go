package ippsrv

import "github.com/OpenPrinting/goipp"

// opError carries an IPP status code alongside the Go error chain, per §7's
// error-kind to status-code mapping. Handlers return *opError rather than a
// bare error when they want to control the response status precisely;
// otherwise the dispatcher maps a plain error to server-error-internal-error.
type opError struct {
	status goipp.Status
	msg    string
	attr   *goipp.Attribute // echoed into the unsupported group, if any
}

func (e *opError) Error() string { return e.msg }

func errBadRequest(msg string) *opError {
	return &opError{status: goipp.StatusErrorBadRequest, msg: msg}
}

func errNotFound(msg string) *opError {
	return &opError{status: goipp.StatusErrorNotFound, msg: msg}
}

func errNotAuthorized(msg string) *opError {
	return &opError{status: goipp.StatusErrorNotAuthorized, msg: msg}
}

func errNotPossible(msg string) *opError {
	return &opError{status: goipp.StatusErrorNotPossible, msg: msg}
}

func errNotSupported(msg string) *opError {
	return &opError{status: goipp.StatusErrorAttributesOrValues, msg: msg}
}

func errDocumentAccess(msg string) *opError {
	return &opError{status: goipp.StatusErrorDocumentAccess, msg: msg}
}

func errNotAcceptingJobs(msg string) *opError {
	return &opError{status: goipp.StatusErrorNotAcceptingJobs, msg: msg}
}

func errInternal(msg string) *opError {
	return &opError{status: goipp.StatusErrorInternal, msg: msg}
}

func errNotFetchable(msg string) *opError {
	return &opError{status: goipp.StatusErrorNotFetchable, msg: msg}
}

func attrUnsupported(attrs goipp.Attributes, name string) *opError {
	for _, a := range attrs {
		if a.Name == name {
			cp := a
			return &opError{status: goipp.StatusErrorAttributesOrValues, msg: "unsupported attribute: " + name, attr: &cp}
		}
	}
	return &opError{status: goipp.StatusErrorAttributesOrValues, msg: "unsupported attribute: " + name}
}
