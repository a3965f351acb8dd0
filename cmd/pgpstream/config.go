package main

import (
	"os"

	openpgp "github.com/ProtonMail/go-crypto/openpgp/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pgpstream/pgpstream/policy"
	"github.com/pgpstream/pgpstream/stream"
)

// policyConfig mirrors the knobs of policy.Standard in the yaml config
// file.
type policyConfig struct {
	AllowSHA1            bool     `yaml:"allow-sha1"`
	AllowLegacyCiphers   bool     `yaml:"allow-legacy-ciphers"`
	AllowUnauthenticated bool     `yaml:"allow-unauthenticated"`
	AllowWeakRSA         bool     `yaml:"allow-weak-rsa"`
	KnownNotations       []string `yaml:"known-notations"`
}

type cliConfig struct {
	Policy policyConfig `yaml:"policy"`
	// AllowUnsigned accepts messages without any signature.
	AllowUnsigned bool `yaml:"allow-unsigned"`
}

func loadConfig() (*cliConfig, error) {
	config := &cliConfig{}
	if flagConfig == "" {
		return config, nil
	}
	data, err := os.ReadFile(flagConfig)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file failed")
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "parsing config file failed")
	}
	return config, nil
}

func (c *cliConfig) buildPolicy() policy.Policy {
	standard := policy.NewStandard()
	standard.InsecureAllowSHA1 = c.Policy.AllowSHA1
	standard.InsecureAllowLegacyCiphers = c.Policy.AllowLegacyCiphers
	standard.InsecureAllowUnauthenticated = c.Policy.AllowUnauthenticated
	standard.InsecureAllowWeakRSA = c.Policy.AllowWeakRSA
	for _, notation := range c.Policy.KnownNotations {
		if standard.KnownNotations == nil {
			standard.KnownNotations = make(map[string]bool)
		}
		standard.KnownNotations[notation] = true
	}
	return standard
}

func loadKeyRing(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring failed")
	}
	defer f.Close()
	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err == nil {
		return entities, nil
	}
	// Retry as a binary keyring.
	if _, seekErr := f.Seek(0, 0); seekErr != nil {
		return nil, errors.Wrap(seekErr, "rewinding keyring failed")
	}
	entities, binErr := openpgp.ReadKeyRing(f)
	if binErr != nil {
		return nil, errors.Wrap(err, "reading keyring failed")
	}
	return entities, nil
}

func bufferSize() int {
	if flagBufferSize > 0 {
		return flagBufferSize
	}
	return stream.DefaultBufferSize
}

// reportStructure prints the verification outcome of every signature group
// to stderr and reports whether all groups verified.
func reportStructure(structure *stream.MessageStructure, out *os.File) bool {
	ok := true
	for _, layer := range structure.Layers {
		if layer.Kind != stream.LayerSignatureGroup {
			continue
		}
		for _, signature := range layer.Signatures {
			if signature.Error != nil {
				ok = false
				out.WriteString("signature: " + signature.Error.Error() + "\n")
				continue
			}
			keyID := ""
			if signature.SignedBy != nil {
				keyID = signature.SignedBy.PublicKey.KeyIdString()
			}
			out.WriteString("signature: good, signed by key " + keyID + "\n")
		}
	}
	return ok
}
