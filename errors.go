package filedb

import (
	"errors"
	"fmt"
)

// Kind identifies one of the exhaustive error tags a caller can switch on.
// The set mirrors the error taxonomy the source database exposes; every
// public operation that can fail returns an *Error wrapping one of these.
type Kind int

const (
	KindUnknown Kind = iota

	// Format
	KindInvalidSignature
	KindUnsupportedNewerVersion
	KindSchemaAlreadyUpToDate

	// Open/close
	KindNoOpenDatabase
	KindDatabaseFileNotFound
	KindEmptyFilename
	KindStreamMustBeWritable
	KindDatabaseReadOnlyMode

	// Schema
	KindInvalidTypeInSchema
	KindInvalidPrimaryKeyType
	KindDatabaseAlreadyHasPrimaryKey
	KindPrimaryKeyCannotBeAdded
	KindFieldNameAlreadyExists
	KindCannotDeletePrimaryKeyField
	KindFieldListIsEmpty
	KindFieldNameIsEmpty
	KindCantAddOrRemoveFieldWithDeletedRecords

	// Data
	KindInvalidDataType
	KindErrorConvertingValueForField
	KindNonArrayValue
	KindMissingPrimaryKey
	KindDuplicatePrimaryKey
	KindPrimaryKeyValueNotFound
	KindMismatchedKeyFieldTypes
	KindInvalidKeyFieldType
	KindInvalidFieldName
	KindFieldSpecifiedTwice

	// Ranges and state
	KindIndexOutOfRange
	KindIteratorPastEndOfFile
	KindDatabaseEmpty
	KindHashSetExpected
	KindNoCurrentTransaction
	KindTransactionAlreadyActive
	KindInvalidFilterConstruct
	KindInvalidOrderByFieldName
	KindCannotOrderByOnArrayField

	// Crypto
	KindDbIsEncrypted
	KindNoEncryptor
	KindInvalidOperation

	// Conversion
	KindCantConvertTypeToGuid
	KindGuidTypeMustBeGuidOrByteArray

	// Metadata
	KindInvalidMetaDataType
)

var kindNames = map[Kind]string{
	KindUnknown:                                 "Unknown",
	KindInvalidSignature:                        "InvalidSignature",
	KindUnsupportedNewerVersion:                 "UnsupportedNewerVersion",
	KindSchemaAlreadyUpToDate:                   "SchemaAlreadyUpToDate",
	KindNoOpenDatabase:                          "NoOpenDatabase",
	KindDatabaseFileNotFound:                    "DatabaseFileNotFound",
	KindEmptyFilename:                           "EmptyFilename",
	KindStreamMustBeWritable:                    "StreamMustBeWritable",
	KindDatabaseReadOnlyMode:                    "DatabaseReadOnlyMode",
	KindInvalidTypeInSchema:                     "InvalidTypeInSchema",
	KindInvalidPrimaryKeyType:                   "InvalidPrimaryKeyType",
	KindDatabaseAlreadyHasPrimaryKey:             "DatabaseAlreadyHasPrimaryKey",
	KindPrimaryKeyCannotBeAdded:                 "PrimaryKeyCannotBeAdded",
	KindFieldNameAlreadyExists:                  "FieldNameAlreadyExists",
	KindCannotDeletePrimaryKeyField:              "CannotDeletePrimaryKeyField",
	KindFieldListIsEmpty:                        "FieldListIsEmpty",
	KindFieldNameIsEmpty:                        "FieldNameIsEmpty",
	KindCantAddOrRemoveFieldWithDeletedRecords:  "CantAddOrRemoveFieldWithDeletedRecords",
	KindInvalidDataType:                         "InvalidDataType",
	KindErrorConvertingValueForField:             "ErrorConvertingValueForField",
	KindNonArrayValue:                           "NonArrayValue",
	KindMissingPrimaryKey:                       "MissingPrimaryKey",
	KindDuplicatePrimaryKey:                     "DuplicatePrimaryKey",
	KindPrimaryKeyValueNotFound:                  "PrimaryKeyValueNotFound",
	KindMismatchedKeyFieldTypes:                  "MismatchedKeyFieldTypes",
	KindInvalidKeyFieldType:                      "InvalidKeyFieldType",
	KindInvalidFieldName:                        "InvalidFieldName",
	KindFieldSpecifiedTwice:                     "FieldSpecifiedTwice",
	KindIndexOutOfRange:                         "IndexOutOfRange",
	KindIteratorPastEndOfFile:                    "IteratorPastEndOfFile",
	KindDatabaseEmpty:                           "DatabaseEmpty",
	KindHashSetExpected:                         "HashSetExpected",
	KindNoCurrentTransaction:                     "NoCurrentTransaction",
	KindTransactionAlreadyActive:                 "TransactionAlreadyActive",
	KindInvalidFilterConstruct:                   "InvalidFilterConstruct",
	KindInvalidOrderByFieldName:                  "InvalidOrderByFieldName",
	KindCannotOrderByOnArrayField:                "CannotOrderByOnArrayField",
	KindDbIsEncrypted:                           "DbIsEncrypted",
	KindNoEncryptor:                             "NoEncryptor",
	KindInvalidOperation:                        "InvalidOperation",
	KindCantConvertTypeToGuid:                    "CantConvertTypeToGuid",
	KindGuidTypeMustBeGuidOrByteArray:             "GuidTypeMustBeGuidOrByteArray",
	KindInvalidMetaDataType:                      "InvalidMetaDataType",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is the concrete error type every public operation returns on
// failure. Op names the failing operation for context; Err, when set, wraps
// an underlying cause (an I/O error, a conversion error, etc).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("filedb: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("filedb: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, &Error{Kind: k}) matches any *Error of kind k; the
// package-level Is below does the same check from a bare Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(op string, kind Kind) error {
	return &Error{Kind: kind, Op: op}
}

func wrapErr(op string, kind Kind, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrorKind extracts the Kind from err if it (or something it wraps) is a
// *Error, returning KindUnknown otherwise.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether the first *Error in err's chain has the given Kind.
func Is(err error, kind Kind) bool {
	return ErrorKind(err) == kind
}
