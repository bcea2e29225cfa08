package notify

import (
	"fmt"
	"strings"

	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// Severity classifies a delivery failure. Channel status codes >= 500 are
// SYSTEM; everything else, including channels with no status at all, is
// CLIENT.
type Severity string

const (
	SeveritySystem Severity = "SYSTEM"
	SeverityClient Severity = "CLIENT"
)

// StatusError carries a channel's own status code so the fan-out can
// classify the failure.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int { return e.Code }

// statusCoder is satisfied by StatusError and by transport errors that
// expose their HTTP status directly (aws request failures do).
type statusCoder interface {
	StatusCode() int
}

func severityOf(err error) Severity {
	var coded statusCoder
	if errors.As(err, &coded) && coded.StatusCode() >= 500 {
		return SeveritySystem
	}
	return SeverityClient
}

// DeliveryError is one recipient's failure, retained with its severity.
type DeliveryError struct {
	RecipientID int64
	Channel     string
	Severity    Severity
	Message     string
}

func (e DeliveryError) String() string {
	return fmt.Sprintf("[%s] %s recipient %d: %s", e.Severity, e.Channel, e.RecipientID, e.Message)
}

// SystemErrorsError is raised when at least one recipient failed with
// SYSTEM severity.
type SystemErrorsError struct {
	Errors []DeliveryError
}

func (e *SystemErrorsError) Error() string {
	return "system errors during delivery: " + joinDeliveryErrors(e.Errors)
}

// ClientErrorsError is raised when recipients failed but none with SYSTEM
// severity.
type ClientErrorsError struct {
	Errors []DeliveryError
}

func (e *ClientErrorsError) Error() string {
	return "client errors during delivery: " + joinDeliveryErrors(e.Errors)
}

func errUnknownChannel(t report.RecipientType) error {
	return errors.Newf("no channel registered for recipient type %q", t)
}

func joinDeliveryErrors(errs []DeliveryError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
