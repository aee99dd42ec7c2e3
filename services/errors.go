package services

import "fmt"

// ValidationError signalisiert fehlerhafte Eingaben (400er-Klasse).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError signalisiert einen fehlenden Datensatz (404er-Klasse).
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// EnrichmentError signalisiert den Totalausfall der Anreicherung.
// Einzelne Provider-Ausfälle degradieren nur die Statistik.
type EnrichmentError struct {
	Msg string
	Err error
}

func (e *EnrichmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("enrichment failed: %s: %v", e.Msg, e.Err)
	}
	return "enrichment failed: " + e.Msg
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// SynthesisError trägt einen maschinenlesbaren Code und optionale
// Provider-Metadaten. Bei diesem Fehler wird nichts persistiert.
type SynthesisError struct {
	Code string
	Msg  string
	Meta map[string]interface{}
	Err  error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis failed (%s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("synthesis failed (%s): %s", e.Code, e.Msg)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IncompletePublishError signalisiert eine verletzte Publish-Vorbedingung.
type IncompletePublishError struct {
	Reason string
}

func (e *IncompletePublishError) Error() string {
	return "cannot publish incomplete case: " + e.Reason
}
