package response

type ErrCode int

const (
	_                             ErrCode = 10000 + iota
	ErrCodeMalformedJSON                  // 10001
	ErrCodeRequestBody                    // 10002
	ErrCodeResourceExists                 // 10003
	ErrCodeResourceNotFound               // 10004
	ErrCodeSignalNotFound                 // 10005
	ErrCodeConnectionNotFound             // 10006
	ErrCodeActionNotFound                 // 10007
	ErrCodeSignalNotWritable              // 10008
	ErrCodeBooleanInvalid                 // 10009
	ErrCodeNumberInvalid                  // 10010
	ErrCodeValueOutOfRange                // 10011
	ErrCodeConnectionNotConnected         // 10012
	ErrCodeCatalogueUnavailable           // 10013
	ErrCodeActionDisabled                 // 10014
	ErrCodeWriteFailed                    // 10015
	ErrCodeCommandAmbiguous               // 10016
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding error message SHOULD be appended in response.errors
// The order MUST be consistent between them
