package wizard

import (
	"html/template"
	"strings"

	"github.com/cvwizard/backend/internal/model"
)

// Template authoring itself is out of scope (pdfrender only owns the render
// call and page-count contract) — these are minimal, print-oriented
// templates sized to fit the two-page CV / one-page cover-letter contract
// pdfrender.Render enforces.
var templateFuncs = template.FuncMap{"join": func(items []string) string { return strings.Join(items, ", ") }}

var cvTemplate = template.Must(template.New("cv").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body{font-family:Helvetica,Arial,sans-serif;font-size:10.5pt;margin:2cm;}
h1{font-size:16pt;margin-bottom:0;}
h2{font-size:12pt;border-bottom:1px solid #333;margin-top:1em;}
.role{margin-bottom:0.6em;}
.role-header{font-weight:bold;}
ul{margin:0.2em 0 0.6em 1.2em;padding:0;}
</style></head><body>
<h1>{{.Contact.FullName}}</h1>
<p>{{.Contact.Email}} · {{.Contact.Phone}}{{range .Contact.AddressLines}} · {{.}}{{end}}</p>
{{if .Profile}}<h2>Profile</h2><p>{{.Profile}}</p>{{end}}
{{if .WorkExperience}}<h2>Work Experience</h2>
{{range .WorkExperience}}<div class="role">
<div class="role-header">{{.Title}} — {{.Employer}} ({{.DateRange}}{{if .Location}}, {{.Location}}{{end}})</div>
<ul>{{range .Bullets}}<li>{{.}}</li>{{end}}</ul>
</div>{{end}}{{end}}
{{if .Education}}<h2>Education</h2>
{{range .Education}}<div class="role">
<div class="role-header">{{.Title}} — {{.Institution}} ({{.DateRange}})</div>
<ul>{{range .Details}}<li>{{.}}</li>{{end}}</ul>
</div>{{end}}{{end}}
{{if .ITAISkills}}<h2>IT &amp; AI Skills</h2><p>{{join .ITAISkills}}</p>{{end}}
{{if .TechnicalOperationalSkills}}<h2>Technical &amp; Operational Skills</h2><p>{{join .TechnicalOperationalSkills}}</p>{{end}}
{{if .Languages}}<h2>Languages</h2><p>{{join .Languages}}</p>{{end}}
{{if .FurtherExperience}}<h2>Further Experience</h2><ul>{{range .FurtherExperience}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Interests}}<h2>Interests</h2><p>{{join .Interests}}</p>{{end}}
</body></html>`))

var coverLetterTemplate = template.Must(template.New("cover_letter").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body{font-family:Helvetica,Arial,sans-serif;font-size:11pt;margin:2.5cm;white-space:pre-wrap;}
</style></head><body>
<p>{{.FullName}}<br>{{.Email}} · {{.Phone}}</p>
<div>{{.Body}}</div>
</body></html>`))

func renderCVHTML(cv model.CVRecord, meta model.Metadata) string {
	var sb strings.Builder
	cvTemplate.Execute(&sb, cv)
	return sb.String()
}

func renderCoverLetterHTML(body string, cv model.CVRecord) string {
	var sb strings.Builder
	coverLetterTemplate.Execute(&sb, struct {
		FullName string
		Email    string
		Phone    string
		Body     string
	}{cv.Contact.FullName, cv.Contact.Email, cv.Contact.Phone, body})
	return sb.String()
}
