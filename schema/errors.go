package schema

import "errors"

var (
	ErrDuplicateRecordType  = errors.New("schema: duplicate record type")
	ErrDuplicateEntityType  = errors.New("schema: duplicate entity type")
	ErrDuplicateAction      = errors.New("schema: duplicate action")
	ErrUnknownAttributeType = errors.New("schema: unknown attribute type")
	ErrRecordTypeCycle      = errors.New("schema: record type reference cycle")
	ErrUnknownRecordType    = errors.New("schema: unknown record type")
	ErrUnknownEntityType    = errors.New("schema: unknown entity type")
	ErrUnknownAction        = errors.New("schema: unknown action")
)
