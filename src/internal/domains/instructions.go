package domains

import "github.com/casapps/caslinks/src/internal/database/models"

// DNSInstruction is one DNS record the tenant must publish at their
// registrar before verification can succeed.
type DNSInstruction struct {
	Type  string `json:"type"`
	Host  string `json:"host"`
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
}

// Instructions returns the records a tenant has to create for a
// claimed domain: an A record pointing at the platform server (www
// recommended as well) and the namespaced verification TXT record.
func (s *Service) Instructions(record *models.CustomDomain) []DNSInstruction {
	appName := s.cfg.GetString("app.name")
	serverIP := s.cfg.GetString("platform.server_ip")

	return []DNSInstruction{
		{
			Type:  "A",
			Host:  "@",
			Value: serverIP,
		},
		{
			Type:  "A",
			Host:  "www",
			Value: serverIP,
			Note:  "recommended so the www form also reaches your page",
		},
		{
			Type:  "TXT",
			Host:  "_" + appName,
			Value: TXTRecordValue(appName, record.VerificationToken),
		},
	}
}
