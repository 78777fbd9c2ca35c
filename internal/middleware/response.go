package middleware

import (
	"net/http"

	"github.com/brightpath/safety-engine/internal/httputil"
)

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}
