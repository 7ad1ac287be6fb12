package compose

import "html/template"

type view struct {
	AppName      string
	Title        string
	Greeting     string
	Banner       string
	BannerClass  string
	Paragraphs   []string
	Instructions string
	ButtonLabel  string
	PortalURL    string
	LinkHint     string
	LinkExpiry   string
	Institution  *institutionView
	Draft        *draftView
	Closing      string
	Signature    string
	Footer       string
}

type institutionView struct {
	Heading           string
	NameLabel         string
	Name              string
	EmailLabel        string
	Email             string
	InstructionsLabel string
	Instructions      string
}

type draftView struct {
	Heading string
	Content string
}

var layout = template.Must(template.New("message").Parse(layoutHTML))

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .banner { padding: 12px; border-radius: 4px; margin: 20px 0; font-weight: bold; }
        .banner.critical { background: #f8d7da; color: #721c24; }
        .banner.high { background: #fff3cd; color: #856404; }
        .banner.medium { background: #d1ecf1; color: #0c5460; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .box { background: #f6f8fa; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .draft { white-space: pre-wrap; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
{{if .Banner}}
    <div class="banner {{.BannerClass}}">{{.Banner}}</div>
{{end}}
    <p>{{.Greeting}}</p>
{{range .Paragraphs}}
    <p>{{.}}</p>
{{end}}
{{if .Instructions}}
    <p>{{.Instructions}}</p>
{{end}}
{{if .PortalURL}}
    <p>
        <a href="{{.PortalURL}}" class="button">{{.ButtonLabel}}</a>
    </p>
    <p>{{.LinkHint}}</p>
    <p class="link">{{.PortalURL}}</p>
{{if .LinkExpiry}}
    <p>{{.LinkExpiry}}</p>
{{end}}
{{end}}
{{with .Institution}}
    <div class="box">
        <strong>{{.Heading}}</strong>
{{if .Name}}
        <p>{{.NameLabel}}: {{.Name}}</p>
{{end}}
{{if .Email}}
        <p>{{.EmailLabel}}: <a href="mailto:{{.Email}}">{{.Email}}</a></p>
{{end}}
{{if .Instructions}}
        <p>{{.InstructionsLabel}}: {{.Instructions}}</p>
{{end}}
    </div>
{{end}}
{{with .Draft}}
    <div class="box">
        <strong>{{.Heading}}</strong>
        <div class="draft">{{.Content}}</div>
    </div>
{{end}}
    <p>{{.Closing}}{{if .Signature}}<br>{{.Signature}}{{end}}</p>
{{if .Footer}}
    <div class="footer">
        <p>{{.Footer}}</p>
    </div>
{{end}}
</body>
</html>`
