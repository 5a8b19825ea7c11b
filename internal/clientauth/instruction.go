package clientauth

import "crypto/x509"

// Instruction carries whatever credential material the transport layer
// extracted from the inbound call. It is request-scoped and never persisted.
type Instruction struct {
	ClientIDFromHeader     string
	ClientSecretFromHeader string
	ClientIDFromBody       string
	ClientSecretFromBody   string
	ClientAssertion        string
	ClientAssertionType    string
	Certificate            *x509.Certificate
}

// CandidateClientID applies the extraction precedence: issuer of a JWS
// client assertion, then the authorization header, then the request body.
func (i *Instruction) CandidateClientID() string {
	if i == nil {
		return ""
	}
	if i.ClientAssertion != "" {
		if iss := assertionIssuer(i.ClientAssertion); iss != "" {
			return iss
		}
	}
	if i.ClientIDFromHeader != "" {
		return i.ClientIDFromHeader
	}
	return i.ClientIDFromBody
}
