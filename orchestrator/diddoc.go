package orchestrator

import (
	"encoding/json"

	"github.com/vault-custody/custody-engine/custodyerr"
)

// patchPublicKeyMultibase rewrites the first verificationMethod entry's
// publicKeyMultibase field in a raw DID document, preserving every other
// field and every other verificationMethod entry untouched, per spec
// §4.7 step 4. The document is treated as opaque JSON rather than a typed
// DID-document model, since no DID-document library appears anywhere in
// the pack.
func patchPublicKeyMultibase(doc []byte, multibase string) ([]byte, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(doc, &generic); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "orchestrator.patchPublicKeyMultibase", "parsing did document")
	}

	methods, _ := generic["verificationMethod"].([]interface{})
	if len(methods) == 0 {
		return nil, custodyerr.New(custodyerr.Internal, "orchestrator.patchPublicKeyMultibase", "did document has no verificationMethod entries")
	}
	first, ok := methods[0].(map[string]interface{})
	if !ok {
		return nil, custodyerr.New(custodyerr.Internal, "orchestrator.patchPublicKeyMultibase", "verificationMethod[0] is not an object")
	}
	first["publicKeyMultibase"] = multibase
	methods[0] = first
	generic["verificationMethod"] = methods

	patched, err := json.Marshal(generic)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "orchestrator.patchPublicKeyMultibase", "marshaling patched did document")
	}
	return patched, nil
}
