package models

// ValidationEntry is one admin-seeded option of a named lookup list (e.g. "lunch_menu").
type ValidationEntry struct {
	ValidationTable string `json:"validationTable"`
	Value           string `json:"value"`
}
