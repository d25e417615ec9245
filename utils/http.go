// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the chat-bridge clients (notification webhook,
// membership API).
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
