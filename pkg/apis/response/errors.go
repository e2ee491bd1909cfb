package response

var errors = map[ErrCode]string{
	ErrCodeMalformedJSON:          "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:            "Request body error",
	ErrCodeResourceExists:         "Resource %s already exists.",
	ErrCodeResourceNotFound:       "Resource %s not found.",
	ErrCodeSignalNotFound:         "Signal %s not found in the catalogue.",
	ErrCodeConnectionNotFound:     "Connection %s not found in the catalogue.",
	ErrCodeActionNotFound:         "Action %s not found in the catalogue.",
	ErrCodeSignalNotWritable:      "Signal %s is a read only point and cannot be written.",
	ErrCodeBooleanInvalid:         "Signal %s requires a boolean value.",
	ErrCodeNumberInvalid:          "Signal %s requires a numeric value.",
	ErrCodeValueOutOfRange:        "Value for signal %s exceeds the register width of its kind.",
	ErrCodeConnectionNotConnected: "Connection %s has no live session.",
	ErrCodeCatalogueUnavailable:   "The signal catalogue is unavailable.",
	ErrCodeActionDisabled:         "Action %s is disabled.",
	ErrCodeWriteFailed:            "Write to signal %s failed: %s",
	ErrCodeCommandAmbiguous:       "A command carries either a signal name or an action name, not both.",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errors[ErrCodeMalformedJSON],
}

var ErrRequestBody = &responseError{
	Code:    ErrCodeRequestBody,
	Message: errors[ErrCodeRequestBody],
}

var ErrCatalogueUnavailable = &responseError{
	Code:    ErrCodeCatalogueUnavailable,
	Message: errors[ErrCodeCatalogueUnavailable],
}

var ErrCommandAmbiguous = &responseError{
	Code:    ErrCodeCommandAmbiguous,
	Message: errors[ErrCodeCommandAmbiguous],
}

func ErrResourceExists(resource string) *responseError {
	return generateError(ErrCodeResourceExists, resource)
}

func ErrResourceNotFound(resource string) *responseError {
	return generateError(ErrCodeResourceNotFound, resource)
}

func ErrSignalNotFound(signal string) *responseError {
	return generateError(ErrCodeSignalNotFound, signal)
}

func ErrConnectionNotFound(connection string) *responseError {
	return generateError(ErrCodeConnectionNotFound, connection)
}

func ErrActionNotFound(action string) *responseError {
	return generateError(ErrCodeActionNotFound, action)
}

func ErrSignalNotWritable(signal string) *responseError {
	return generateError(ErrCodeSignalNotWritable, signal)
}

func ErrBooleanInvalid(signal string) *responseError {
	return generateError(ErrCodeBooleanInvalid, signal)
}

func ErrNumberInvalid(signal string) *responseError {
	return generateError(ErrCodeNumberInvalid, signal)
}

func ErrValueOutOfRange(signal string) *responseError {
	return generateError(ErrCodeValueOutOfRange, signal)
}

func ErrConnectionNotConnected(connection string) *responseError {
	return generateError(ErrCodeConnectionNotConnected, connection)
}

func ErrActionDisabled(action string) *responseError {
	return generateError(ErrCodeActionDisabled, action)
}

func ErrWriteFailed(signal string, err error) *responseError {
	return generateErrorWrapper(ErrCodeWriteFailed, err, signal, err.Error())
}
