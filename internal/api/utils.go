package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ObfuscateKey obfuscates a sensitive key for display.
func ObfuscateKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns an empty string when the header is absent or
// malformed.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// GetManagementToken gets the admin management token from a cobra command or environment.
func GetManagementToken(cmd *cobra.Command) (string, error) {
	mgmtToken, _ := cmd.Flags().GetString("management-token")
	if mgmtToken == "" {
		mgmtToken = os.Getenv("MANAGEMENT_TOKEN")
	}
	if mgmtToken == "" {
		return "", fmt.Errorf("management token is required (set MANAGEMENT_TOKEN env or use --management-token)")
	}
	return mgmtToken, nil
}
