// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package store

import (
	"database/sql"
	"encoding/base64"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/crestflow/crestflow/common"
)

// ObjectSpec is one entry of the ingestion file's objects map: either inline
// content or a local file path. Extension is accepted for compatibility but
// the default store layout keeps objects under their bare key.
type ObjectSpec struct {
	Path      string  `json:"path,omitempty"`
	Content   *string `json:"content,omitempty"`
	Encoding  string  `json:"encoding,omitempty"`
	Extension string  `json:"extension,omitempty"`
}

// UploadSource resolves one upload_paths value to an object key, either
// through an object label declared in the same file or a literal key. A nil
// *UploadSource in the map means "create a directory".
type UploadSource struct {
	Label string `json:"label,omitempty"`
	Key   string `json:"key,omitempty"`
}

type ClientConfig struct {
	Label           string `json:"label,omitempty"`
	ClientURL       string `json:"client_url"`
	ClientID        string `json:"client_id"`
	ClientSecret    string `json:"client_secret"`
	TokenURI        string `json:"token_uri"`
	MachineName     string `json:"machine_name"`
	WorkDir         string `json:"work_dir"`
	FSystem         string `json:"fsystem,omitempty"`
	SmallFileSizeMB *int64 `json:"small_file_size_mb,omitempty"`
}

type CodeConfig struct {
	Label       string                   `json:"label,omitempty"`
	ClientLabel string                   `json:"client_label"`
	Script      string                   `json:"script"`
	UploadPaths map[string]*UploadSource `json:"upload_paths,omitempty"`
}

type CalcJobConfig struct {
	Label         string                   `json:"label,omitempty"`
	CodeLabel     string                   `json:"code_label"`
	UUID          string                   `json:"uuid,omitempty"`
	Parameters    map[string]interface{}   `json:"parameters,omitempty"`
	UploadPaths   map[string]*UploadSource `json:"upload_paths,omitempty"`
	DownloadGlobs []string                 `json:"download_globs,omitempty"`
}

// Config is the accepted shape of an ingestion file. Every key is optional.
type Config struct {
	Objects  map[string]ObjectSpec `json:"objects,omitempty"`
	Clients  []ClientConfig        `json:"clients,omitempty"`
	Codes    []CodeConfig          `json:"codes,omitempty"`
	CalcJobs []CalcJobConfig       `json:"calcjobs,omitempty"`
}

// SaveFromYAML ingests a YAML document of the Config shape. Unknown keys are
// rejected rather than silently dropped.
func (s *Store) SaveFromYAML(data []byte) (map[string][]int64, error) {
	cfg := new(Config)
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, validationf("could not read configuration: %v", err)
	}
	return s.SaveFromConfig(cfg)
}

// SaveFromConfig loads a batch of objects and rows. Objects go into the
// object store first (idempotent, so a later failure leaves no garbage);
// the rows are written in one transaction so a single bad item rejects the
// whole batch. It returns the pks added per table key.
func (s *Store) SaveFromConfig(cfg *Config) (map[string][]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	labelToKey := make(map[string]string, len(cfg.Objects))
	for label, spec := range cfg.Objects {
		key, err := s.addObject(label, spec)
		if err != nil {
			return nil, err
		}
		labelToKey[label] = key
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, errors.Wrap(err, "begin ingest")
	}
	added, err := s.ingestRows(tx, cfg, labelToKey)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit ingest")
	}
	return added, nil
}

func (s *Store) addObject(label string, spec ObjectSpec) (string, error) {
	switch {
	case spec.Content != nil:
		data, err := decodeContent(*spec.Content, spec.Encoding)
		if err != nil {
			return "", validationf("object %q: %v", label, err)
		}
		key, err := s.objects.AddFromBytes(data)
		return key, errors.Wrapf(err, "object %q", label)
	case spec.Path != "":
		key, err := s.objects.AddFromFile(spec.Path)
		if err != nil {
			return "", validationf("object %q: %v", label, err)
		}
		return key, nil
	default:
		return "", validationf("expected either 'content' or 'path' for object %q", label)
	}
}

func decodeContent(content, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8", "ascii":
		return []byte(content), nil
	case "base64":
		data, err := base64.StdEncoding.DecodeString(content)
		return data, errors.Wrap(err, "decode base64 content")
	default:
		return nil, errors.Errorf("unsupported encoding %q", encoding)
	}
}

func (s *Store) ingestRows(tx *sqlx.Tx, cfg *Config, labelToKey map[string]string) (map[string][]int64, error) {
	added := make(map[string][]int64)

	for i, cc := range cfg.Clients {
		client, err := clientFromConfig(&cc)
		if err != nil {
			return nil, validationf("clients[%d] item is invalid: %v", i, err)
		}
		if err := s.saveRow(tx, client); err != nil {
			return nil, validationf("clients[%d] item is invalid: %v", i, err)
		}
		added["clients"] = append(added["clients"], client.Pk)
	}

	for i, cc := range cfg.Codes {
		if cc.ClientLabel == "" {
			return nil, validationf("codes[%d] item has no 'client_label' key", i)
		}
		var clientPk int64
		err := sqlx.Get(tx, &clientPk, `SELECT pk FROM client WHERE label = ?`, cc.ClientLabel)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationf("codes[%d]['client_label'] = %q not found", i, cc.ClientLabel)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "resolve codes[%d] client", i)
		}
		upload, err := convertUploadPaths(cc.UploadPaths, labelToKey, "codes", i)
		if err != nil {
			return nil, err
		}
		code := &common.Code{Label: cc.Label, ClientPk: clientPk, Script: cc.Script, UploadPaths: upload}
		if err := s.saveRow(tx, code); err != nil {
			return nil, validationf("codes[%d] item is invalid: %v", i, err)
		}
		added["codes"] = append(added["codes"], code.Pk)
	}

	for i, cc := range cfg.CalcJobs {
		if cc.CodeLabel == "" {
			return nil, validationf("calcjobs[%d] item has no 'code_label' key", i)
		}
		var codePk int64
		err := sqlx.Get(tx, &codePk, `SELECT pk FROM code WHERE label = ? ORDER BY pk LIMIT 1`, cc.CodeLabel)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationf("calcjobs[%d]['code_label'] = %q not found", i, cc.CodeLabel)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "resolve calcjobs[%d] code", i)
		}
		upload, err := convertUploadPaths(cc.UploadPaths, labelToKey, "calcjobs", i)
		if err != nil {
			return nil, err
		}
		calc := &common.CalcJob{
			Label: cc.Label, UUID: cc.UUID, CodePk: codePk,
			Parameters: cc.Parameters, UploadPaths: upload, DownloadGlobs: cc.DownloadGlobs,
		}
		if err := s.saveRow(tx, calc); err != nil {
			return nil, validationf("calcjobs[%d] item is invalid: %v", i, err)
		}
		added["calcjobs"] = append(added["calcjobs"], calc.Pk)
	}

	return added, nil
}

func clientFromConfig(cc *ClientConfig) (*common.Client, error) {
	fs := common.EFilesystem.Posix()
	if cc.FSystem != "" {
		if err := fs.Parse(cc.FSystem); err != nil {
			return nil, errors.Errorf("fsystem must be posix or windows, got %q", cc.FSystem)
		}
	}
	small := int64(5)
	if cc.SmallFileSizeMB != nil {
		small = *cc.SmallFileSizeMB
	}
	return &common.Client{
		Label:           cc.Label,
		ClientURL:       cc.ClientURL,
		ClientID:        cc.ClientID,
		ClientSecret:    cc.ClientSecret,
		TokenURI:        cc.TokenURI,
		MachineName:     cc.MachineName,
		WorkDir:         cc.WorkDir,
		FSystem:         fs,
		SmallFileSizeMB: small,
	}, nil
}

// convertUploadPaths rewrites {label: X} and {key: X} values to bare keys.
// Null values stand for directories and pass through; key presence in the
// object store is enforced later, on save.
func convertUploadPaths(src map[string]*UploadSource, labelToKey map[string]string, kind string, idx int) (map[string]*string, error) {
	if src == nil {
		return nil, nil
	}
	out := make(map[string]*string, len(src))
	for rel, val := range src {
		switch {
		case val == nil:
			out[rel] = nil
		case val.Label != "":
			key, ok := labelToKey[val.Label]
			if !ok {
				return nil, validationf("%s[%d][upload_paths][%s]['label'] = %q not found", kind, idx, rel, val.Label)
			}
			out[rel] = &key
		case val.Key != "":
			key := val.Key
			out[rel] = &key
		default:
			return nil, validationf("expected either 'label' or 'key' for %s[%d][upload_paths][%s]", kind, idx, rel)
		}
	}
	return out, nil
}
