package api

import (
	"encoding/xml"
	"net/http"
)

type messagingResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// writeMessagingReply answers a messaging-provider webhook with a single
// reply message. The provider expects 200 even when processing failed.
func writeMessagingReply(w http.ResponseWriter, text string) {
	out, err := xml.Marshal(messagingResponse{Message: text})
	if err != nil {
		out, _ = xml.Marshal(messagingResponse{Message: apologyReply})
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
