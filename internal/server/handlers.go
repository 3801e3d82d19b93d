package server

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"mime"
	"net/http"
	"strings"

	"sensorwatch/internal/sensor"
)

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var ev sensor.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid event payload: "+err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.pipeline.ProcessEvent(r.Context(), ev)

	w.Header().Set("X-Batch-ID", result.BatchID.String())
	if failed := result.Failed(); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, f := range failed {
			names = append(names, f.SensorName)
		}
		w.Header().Set("X-Failed-Readings", strings.Join(names, ","))
	}
	writeJSON(w, http.StatusOK, ev)
}

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	text, err := commandText(r)
	if err != nil {
		http.Error(w, "invalid command body", http.StatusBadRequest)
		return
	}

	reply := s.pipeline.HandleCommand(r.Context(), text)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(twiml{Message: reply})
}

// commandText reads the Twilio "Body" form field, or the raw body for any
// other content type.
func commandText(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.PostForm.Get("Body"), nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	armed := false
	if s.arm != nil {
		armed = s.arm.Armed()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "armed": armed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
