package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCredentialGuide explains where API keys come from
func ShowCredentialGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "API CREDENTIALS")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Open the developer portal and create a project with an app.")
	fmt.Fprintln(w, "2. Under 'Keys and tokens' copy the API key and API key secret,")
	fmt.Fprintln(w, "   or generate a bearer token.")
	fmt.Fprintln(w, "3. Run 'followgraph auth add <name>' and paste the values.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every credential adds its own rate limit window. Register several")
	fmt.Fprintln(w, "and the crawler rotates between them.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "INI files from other tools work too:")
	fmt.Fprintln(w, "   [TWITTER]")
	fmt.Fprintln(w, "   CONSUMER_KEY = ...")
	fmt.Fprintln(w, "   CONSUMER_SECRET = ...")
	fmt.Fprintln(w, "   ACCESS_TOKEN = ...")
	fmt.Fprintln(w, "   ACCESS_TOKEN_SECRET = ...")
	fmt.Fprintln(w, "Pass them with --credentials a.ini,b.ini or api.credential_files.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
