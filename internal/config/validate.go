package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding about a pipeline document.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidatePipeline checks p and returns every issue found. An empty result
// means the document is usable.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fieldPath(fe.Namespace()),
					Message:  describe(fe),
				})
			}
		} else {
			issues = append(issues, Issue{Severity: SeverityError, Path: "", Message: err.Error()})
		}
	}

	switch p.Source.Kind {
	case "csv", "json":
		if p.Source.File == nil {
			issues = append(issues, Issue{SeverityError, "source.file", "required for file sources"})
		}
		if p.Source.Mongo != nil {
			issues = append(issues, Issue{SeverityWarning, "source.mongo", "ignored for file sources"})
		}
	case "mongo":
		if p.Source.Mongo == nil {
			issues = append(issues, Issue{SeverityError, "source.mongo", "required for mongo source"})
		}
	}

	if p.Source.Kind == "json" && p.Source.File != nil && isLatin1(p.Source.File.Encoding) {
		issues = append(issues, Issue{SeverityWarning, "source.file.encoding", "latin1 is only applied to csv input"})
	}

	if p.Metrics.Backend == "pushgateway" && p.Metrics.PushgatewayURL == "" {
		issues = append(issues, Issue{SeverityWarning, "metrics.pushgateway_url", "empty; PUSHGATEWAY_URL or http://localhost:9091 will be used"})
	}

	if p.Runtime.AtomicReload && p.Storage.Kind == "mssql" {
		issues = append(issues, Issue{SeverityWarning, "runtime.atomic_reload", "mssql reload holds table locks for the whole load"})
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func isLatin1(enc string) bool {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "latin1", "latin-1", "iso-8859-1":
		return true
	}
	return false
}

// fieldPath turns "Pipeline.Storage.DSN" into "storage.dsn".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "url":
		return "must be a URL"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
