package werror

import "errors"

// The six error kinds from the core's error taxonomy. Each is exposed as a
// New.../To.../Is... trio so callers never switch on Code directly.
const (
	ErrCodeNotFound        Code = "NotFound"
	ErrCodeTransport       Code = "Transport"
	ErrCodeBuildFailure    Code = "BuildFailure"
	ErrCodeMetadataFailure Code = "MetadataFailure"
	ErrCodeVersionConflict Code = "VersionConflict"
	ErrCodeInstallFailure  Code = "InstallFailure"
)

// Detail keys used by multiple stages.
const (
	DetailRequirement DetailKey = "requirement"
	DetailPackageName DetailKey = "package_name"
	DetailURL         DetailKey = "url"
	DetailPredicates  DetailKey = "predicates"
	DetailRequesters  DetailKey = "requesters"
)

// To returns the first Error in err's chain if its Code is code, or nil.
// A later Error in the chain is not examined.
func To(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	var wErr Error
	if errors.As(err, &wErr) && wErr.Code() == code {
		return &wErr
	}
	return nil
}

func NewNotFound(message string) Error {
	return New(message, AudienceExternal, ErrCodeNotFound, nil)
}
func ToNotFound(err error) *Error { return To(err, ErrCodeNotFound) }
func IsNotFound(err error) bool   { return ToNotFound(err) != nil }

func NewTransport(message string, inner error) Error {
	return New(message, AudienceInternal, ErrCodeTransport, inner)
}
func ToTransport(err error) *Error { return To(err, ErrCodeTransport) }
func IsTransport(err error) bool   { return ToTransport(err) != nil }

func NewBuildFailure(message string, inner error) Error {
	return New(message, AudienceExternal, ErrCodeBuildFailure, inner)
}
func ToBuildFailure(err error) *Error { return To(err, ErrCodeBuildFailure) }
func IsBuildFailure(err error) bool   { return ToBuildFailure(err) != nil }

func NewMetadataFailure(message string, inner error) Error {
	return New(message, AudienceExternal, ErrCodeMetadataFailure, inner)
}
func ToMetadataFailure(err error) *Error { return To(err, ErrCodeMetadataFailure) }
func IsMetadataFailure(err error) bool   { return ToMetadataFailure(err) != nil }

func NewVersionConflict(message string, details Details) Error {
	return NewWithDetails(message, details, AudienceExternal, ErrCodeVersionConflict, nil)
}
func ToVersionConflict(err error) *Error { return To(err, ErrCodeVersionConflict) }
func IsVersionConflict(err error) bool   { return ToVersionConflict(err) != nil }

func NewInstallFailure(message string, inner error) Error {
	return New(message, AudienceExternal, ErrCodeInstallFailure, inner)
}
func ToInstallFailure(err error) *Error { return To(err, ErrCodeInstallFailure) }
func IsInstallFailure(err error) bool   { return ToInstallFailure(err) != nil }
