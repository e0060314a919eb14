package server

import "net/http"

func (s *Server) chat(w http.ResponseWriter, r *http.Request) error {
	reply, err := s.assistant.Answer(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, reply)
	return nil
}
