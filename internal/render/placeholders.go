package render

import "html/template"

// Placeholder graphics shown where the API returned no image.
const (
	LabeledPlaceholder template.URL = `data:image/svg+xml,%3Csvg xmlns="http://www.w3.org/2000/svg" width="600" height="300" viewBox="0 0 600 300"%3E%3Crect width="600" height="300" fill="%23eee"/%3E%3Ctext x="50%25" y="50%25" dominant-baseline="middle" text-anchor="middle" font-family="Arial" font-size="20" fill="%23666"%3ELabeled Cheque Image%3C/text%3E%3C/svg%3E`
	CroppedPlaceholder template.URL = `data:image/svg+xml,%3Csvg xmlns="http://www.w3.org/2000/svg" width="200" height="100" viewBox="0 0 200 100"%3E%3Crect width="200" height="100" fill="%23ddd"/%3E%3Ctext x="50%25" y="50%25" dominant-baseline="middle" text-anchor="middle" font-family="Arial" font-size="14" fill="%23666"%3ECropped Image%3C/text%3E%3C/svg%3E`
)
