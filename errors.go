// errors.go - structured error taxonomy, per the design's error handling section
package erp

import "fmt"

// ModelNotFoundError is returned when a lookup against the registry misses.
type ModelNotFoundError struct{ Model string }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("erp: model not found: %s", e.Model)
}

// RecordsNotFoundError is returned when expected cache entries are absent
// after a load from storage.
type RecordsNotFoundError struct {
	Model string
	Ids   []Id
}

func (e *RecordsNotFoundError) Error() string {
	return fmt.Sprintf("erp: records not found: %s%v", e.Model, e.Ids)
}

// RequiredFieldEmptyError is returned when a typed reader demanded a value
// but the cache held None for a required field.
type RequiredFieldEmptyError struct {
	Model, Field string
	Id           Id
}

func (e *RequiredFieldEmptyError) Error() string {
	return fmt.Sprintf("erp: required field empty: %s.%s on id %d", e.Model, e.Field, e.Id)
}

// MaximumRecursionDepthComputeError is raised when the compute driver
// exceeds its recursion cap while draining cascading to-recompute entries.
type MaximumRecursionDepthComputeError struct {
	Model  string
	Fields []string
	Ids    []Id
}

func (e *MaximumRecursionDepthComputeError) Error() string {
	return fmt.Sprintf("erp: maximum recursion depth exceeded computing %s%v on %s%v", e.Model, e.Fields, e.Model, e.Ids)
}

// InvalidDomainError is raised by the search-expression prefix parser on a
// malformed token list.
type InvalidDomainError struct{ Tokens []interface{} }

func (e *InvalidDomainError) Error() string {
	return fmt.Sprintf("erp: invalid domain: %v", e.Tokens)
}

// UnknownSearchKeyError is raised when a search tuple references a field
// the model does not declare.
type UnknownSearchKeyError struct{ Token string }

func (e *UnknownSearchKeyError) Error() string {
	return fmt.Sprintf("erp: unknown search key: %s", e.Token)
}

// UnknownSearchOperatorError is raised for an unrecognised comparison
// operator, and also when a tuple's right-hand value has the wrong shape for
// its operator or a kind the ordered operators cannot compare.
type UnknownSearchOperatorError struct{ Op string }

func (e *UnknownSearchOperatorError) Error() string {
	return fmt.Sprintf("erp: unknown search operator: %s", e.Op)
}

// InverseLinkMismatchError is raised during PostRegister when an O2M field
// points at a field that is not declared M2O.
type InverseLinkMismatchError struct{ Model, Field string }

func (e *InverseLinkMismatchError) Error() string {
	return fmt.Sprintf("erp: inverse link mismatch: %s.%s is not an M2O field", e.Model, e.Field)
}

// CircularDependencyError is raised by the plugin dependency sort.
type CircularDependencyError struct{ Plugin string }

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("erp: circular plugin dependency involving %s", e.Plugin)
}

// MissingDependencyError is raised when a plugin depends on a plugin that
// was never registered.
type MissingDependencyError struct{ Plugin, Dependency string }

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("erp: plugin %s depends on unregistered plugin %s", e.Plugin, e.Dependency)
}

// PluginAlreadyRegisteredError is raised by double registration of a plugin name.
type PluginAlreadyRegisteredError struct{ Plugin string }

func (e *PluginAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("erp: plugin already registered: %s", e.Plugin)
}

// PluginNotFoundError is raised when a referenced plugin was never registered.
type PluginNotFoundError struct{ Plugin string }

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("erp: plugin not found: %s", e.Plugin)
}

// SavepointNotFoundError is raised when Commit/Rollback names a savepoint
// that is not open on the store.
type SavepointNotFoundError struct{ Name string }

func (e *SavepointNotFoundError) Error() string {
	return fmt.Sprintf("erp: savepoint not found: %s", e.Name)
}
