package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowAppRegistrationGuide explains how to register an OAuth app and get
// the first authorization code
func ShowAppRegistrationGuide(w io.Writer, authURL string) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, "📚 TUMBLR API ACCESS GUIDE")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "This tool talks to the Tumblr API with an OAuth2 token.")
	fmt.Fprintln(w, "The first run trades a one-time authorization code for that token.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔧 STEP 1: Register an application")
	fmt.Fprintln(w, "   - Go to https://www.tumblr.com/oauth/apps")
	fmt.Fprintln(w, "   - Click 'Register application'")
	fmt.Fprintln(w, "   - Set 'OAuth2 redirect URLs' to the redirect_uri you will configure")
	fmt.Fprintln(w, "     (any URL you control works, e.g. http://localhost:8080/callback)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔑 STEP 2: Configure the client")
	fmt.Fprintln(w, "   - Copy 'OAuth consumer key' to CLIENT_ID")
	fmt.Fprintln(w, "   - Copy 'Secret key' to CLIENT_SECRET")
	fmt.Fprintln(w, "   - Set REDIRECT_URI to the URL from step 1")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🌐 STEP 3: Authorize")
	if authURL != "" {
		fmt.Fprintf(w, "   - Open: %s\n", authURL)
	} else {
		fmt.Fprintln(w, "   - Run 'tumblrsync auth url' and open the printed URL")
	}
	fmt.Fprintln(w, "   - Approve access; the browser is redirected to REDIRECT_URI?code=...")
	fmt.Fprintln(w, "   - Copy the code parameter to CODE (or paste it into 'tumblrsync auth login')")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "💡 TIPS:")
	fmt.Fprintln(w, "   • The code is single use and expires quickly")
	fmt.Fprintln(w, "   • After the first exchange the refresh token keeps the credential alive")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "⚠️  SECURITY WARNING:")
	fmt.Fprintln(w, "   • The stored token gives access to your Tumblr account")
	fmt.Fprintln(w, "   • Use the keyring or encrypted backend on shared machines")
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)
}
