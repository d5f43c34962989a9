package httpapi

import (
	"html/template"
	"net/http"
)

// formData feeds both password forms. Token is the bare access token.
type formData struct {
	Token string
}

// Password-creation form, shown on first access to a protected file so the
// uploader can set the password before sharing the URL.
const createFormSrc = `<!DOCTYPE HTML>
<body>
    <form action="/set-password/{{.Token}}" method="post">
        Set access password
        <input type="text" name="password"/>
        <input type="submit" value="Submit">
    </form>
</body>`

// Password-entry form, shown while the file is locked. Submits back to the
// file URL itself.
const entryFormSrc = `<!DOCTYPE HTML>
<head>
    <style>
        html, body, form { height: 100%; overflow: hidden; }
        form { display: flex; flex-direction: column; justify-content: center; align-items: center;}
        input { border: 1px solid #e6e6e6; padding: 10px 15px; width: 300px; color: #545454; }
    </style>
</head>
<body>
    <form action="/{{.Token}}" method="post">
        <input type="password" name="password" placeholder="password"/>
    </form>
</body>`

var (
	createForm = template.Must(template.New("create-password").Parse(createFormSrc))
	entryForm  = template.Must(template.New("enter-password").Parse(entryFormSrc))
)

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, tmpl *template.Template, token string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, formData{Token: token}); err != nil {
		h.logger.Error(r.Context(), "rendering form failed", "template", tmpl.Name(), "error", err)
	}
}
