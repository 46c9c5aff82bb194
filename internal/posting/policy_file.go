package posting

import (
	"fmt"
	"io"
	"os"

	"github.com/smallbiznis/hera/internal/posting/domain"
	"gopkg.in/yaml.v3"
)

// LoadPolicyFile reads a YAML posting policy.
func LoadPolicyFile(path string) (domain.PolicyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.PolicyFile{}, fmt.Errorf("open policy file: %w", err)
	}
	defer f.Close()
	return DecodePolicy(f)
}

func DecodePolicy(r io.Reader) (domain.PolicyFile, error) {
	var file domain.PolicyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return domain.PolicyFile{}, fmt.Errorf("%w: %v", domain.ErrInvalidPolicy, err)
	}
	return file, nil
}
