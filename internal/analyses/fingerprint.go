package analyses

import (
	"encoding/json"
	"strings"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/shared/util"
)

// InputFingerprint identifies a request by document type, norms, document
// text and evidence ids. Two identical submissions share a fingerprint.
func InputFingerprint(req conformity.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString(req.DocumentType)
	b.WriteByte(0)
	b.WriteString(strings.Join(req.ApplicableNorms, ","))
	b.WriteByte(0)
	b.WriteString(req.Document)
	b.WriteByte(0)
	b.WriteString(strings.Join(req.EvidenceIDs(), ","))
	return util.SHA256Hex([]byte(b.String()))
}

// ResultHash is the sha256 of the scored result's canonical JSON.
func ResultHash(result conformity.AnalysisResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return util.SHA256Hex(data), nil
}
