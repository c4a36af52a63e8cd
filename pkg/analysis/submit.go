/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	dbutils "github.com/certsocietegenerale/fame/pkg/database/utils"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// hashTypeName is the type of a submission for which only a digest is
// known. Such analyses go through preloading before anything can run.
const hashTypeName = "hash"

// SubmitFile registers content in the store. Known content is only
// enriched with the new name, owner and groups; the second return value
// reports that case. A known hash record is upgraded with the bytes.
func (s *Service) SubmitFile(ctx context.Context, name string, r io.Reader, groups []string, owner string) (*client.File, bool, error) {
	dir, err := s.store.TempDir()
	if err != nil {
		return nil, false, err
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, utils.SanitizeFilename(name))
	dst, err := os.Create(tmp)
	if err != nil {
		return nil, false, err
	}
	size, err := io.Copy(dst, r)
	dst.Close()
	if err != nil {
		return nil, false, err
	}

	hashes, err := utils.HashFile(tmp)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.db.GetFileByHash(ctx, hashes.SHA256)
	switch {
	case err == nil && existing.Type != hashTypeName:
		if err := s.enrichFile(ctx, existing, name, groups, owner); err != nil {
			return nil, false, err
		}
		existing, err = s.db.GetFile(ctx, existing.Id)
		return existing, true, err
	case err == nil:
		// The content behind a hash submission finally showed up.
		if err := s.attachContent(ctx, existing, name, tmp, size); err != nil {
			return nil, false, err
		}
		if err := s.enrichFile(ctx, existing, name, groups, owner); err != nil {
			return nil, false, err
		}
		existing, err = s.db.GetFile(ctx, existing.Id)
		return existing, true, err
	case !errors.IsNotFound(err):
		return nil, false, err
	}

	path, err := s.storeContent(ctx, hashes.SHA256, name, tmp)
	if err != nil {
		return nil, false, err
	}
	mime := detectMime(tmp)
	fileType := s.resolveType(ctx, name, path, mime)
	f := &client.File{
		Id:             uuid.NewString(),
		MD5:            hashes.MD5,
		SHA1:           hashes.SHA1,
		SHA256:         hashes.SHA256,
		Type:           fileType,
		Mime:           dbutils.NullString(mime),
		Size:           size,
		FilePath:       dbutils.NullString(path),
		Names:          pq.StringArray{name},
		Groups:         toStringArray(groups),
		Owners:         ownerArray(owner),
		ParentAnalyses: pq.StringArray{},
		Analyses:       pq.StringArray{},
		ProbableNames:  pq.StringArray{},
		Antivirus:      s.antivirusMap(),
		Comments:       []byte("[]"),
		CreateTime:     dbutils.NullTime(time.Now().UTC()),
	}
	if err := s.db.InsertFile(ctx, f); err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// SubmitFilePath registers the file at path.
func (s *Service) SubmitFilePath(ctx context.Context, name, path string, groups []string, owner string) (*client.File, bool, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer src.Close()
	return s.SubmitFile(ctx, name, src, groups, owner)
}

// SubmitHash registers a digest-only submission. When the digest matches
// known content that record is returned instead.
func (s *Service) SubmitHash(ctx context.Context, hash string, groups []string, owner string) (*client.File, bool, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	existing, err := s.db.GetFileByHash(ctx, hash)
	switch {
	case err == nil:
		if err := s.enrichFile(ctx, existing, "", groups, owner); err != nil {
			return nil, false, err
		}
		existing, err = s.db.GetFile(ctx, existing.Id)
		return existing, true, err
	case !errors.IsNotFound(err):
		return nil, false, err
	}

	f := &client.File{
		Id:             uuid.NewString(),
		Type:           hashTypeName,
		FilePath:       dbutils.NullString(hash),
		Names:          pq.StringArray{hash},
		Groups:         toStringArray(groups),
		Owners:         ownerArray(owner),
		ParentAnalyses: pq.StringArray{},
		Analyses:       pq.StringArray{},
		ProbableNames:  pq.StringArray{},
		Antivirus:      []byte("{}"),
		Comments:       []byte("[]"),
		CreateTime:     dbutils.NullTime(time.Now().UTC()),
	}
	switch len(hash) {
	case 32:
		f.MD5 = hash
	case 40:
		f.SHA1 = hash
	case 64:
		f.SHA256 = hash
	default:
		return nil, false, errors.NewBadRequest("unsupported hash length %d", len(hash))
	}
	if err := s.db.InsertFile(ctx, f); err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// Analyze creates an analysis of the file and starts it. Requested
// preloading modules are recorded as candidates; everything else goes
// through module queueing, followed by the automatic pass.
func (s *Service) Analyze(ctx context.Context, f *client.File, groups []string, analyst string, modules []string, options map[string]interface{}) (*client.Analysis, error) {
	var preloading, processing []string
	for _, name := range modules {
		if entry, ok := s.catalog.Entry(name); ok && entry.Info.Type == module.TypePreloading {
			preloading = append(preloading, name)
		} else {
			// Unknown names stay here so queueing can report them.
			processing = append(processing, name)
		}
	}

	optionsData := []byte("{}")
	if len(options) > 0 {
		var err error
		if optionsData, err = json.Marshal(options); err != nil {
			return nil, err
		}
	}

	a := &client.Analysis{
		Id:                uuid.NewString(),
		FileId:            f.Id,
		Status:            client.AnalysisStatusPending,
		Analyst:           dbutils.NullString(analyst),
		Modules:           toStringArray(processing),
		PreloadingModules: toStringArray(preloading),
		PendingModules:    pq.StringArray{},
		WaitingModules:    pq.StringArray{},
		ExecutedModules:   pq.StringArray{},
		CanceledModules:   pq.StringArray{},
		Tags:              pq.StringArray{},
		ProbableNames:     pq.StringArray{},
		ExtractedFiles:    pq.StringArray{},
		Groups:            toStringArray(groups),
		Logs:              pq.StringArray{},
		Options:           optionsData,
		Results:           []byte("{}"),
		GeneratedFiles:    []byte("{}"),
		SupportFiles:      []byte("{}"),
		Extractions:       []byte("[]"),
		CreateTime:        dbutils.NullTime(time.Now().UTC()),
	}
	if err := s.db.InsertAnalysis(ctx, a); err != nil {
		return nil, err
	}
	if err := s.addFileGroups(ctx, f, groups); err != nil {
		return nil, err
	}
	if _, err := s.db.AddFileToSet(ctx, f.Id, client.FileAnalyses, a.Id); err != nil {
		return nil, err
	}

	if len(processing) > 0 {
		if err := s.QueueModules(ctx, a, f, processing, true); err != nil {
			return nil, err
		}
	}
	// The automatic pass only applies to bare submissions: general-purpose
	// modules that cannot run right away are skipped, not parked.
	if len(processing) == 0 && s.MagicEnabled(a) && !s.needsPreloading(f) {
		refreshed, err := s.db.GetAnalysis(ctx, a.Id)
		if err != nil {
			return nil, err
		}
		if err := s.QueueModules(ctx, refreshed, f, s.catalog.GeneralPurpose(), false); err != nil {
			return nil, err
		}
	}
	if err := s.Resume(ctx, a.Id); err != nil {
		return nil, err
	}
	return s.db.GetAnalysis(ctx, a.Id)
}

// enrichFile adds a new sighting of known content: name, owner, groups.
func (s *Service) enrichFile(ctx context.Context, f *client.File, name string, groups []string, owner string) error {
	if name != "" {
		if _, err := s.db.AddFileToSet(ctx, f.Id, client.FileNames, name); err != nil {
			return err
		}
	}
	if owner != "" {
		if _, err := s.db.AddFileToSet(ctx, f.Id, client.FileOwners, owner); err != nil {
			return err
		}
	}
	return s.addFileGroups(ctx, f, groups)
}

// attachContent upgrades a hash-only record with the actual bytes.
func (s *Service) attachContent(ctx context.Context, f *client.File, name, tmp string, size int64) error {
	path, err := s.storeContent(ctx, f.SHA256, name, tmp)
	if err != nil {
		return err
	}
	mime := detectMime(tmp)
	fileType := s.resolveType(ctx, name, path, mime)
	return s.db.UpdateFileContent(ctx, f.Id, path, fileType, "", mime, size)
}

func (s *Service) storeContent(ctx context.Context, sha256, name, tmp string) (string, error) {
	src, err := os.Open(tmp)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return s.store.StoreFile(ctx, sha256, utils.SanitizeFilename(name), src)
}

// antivirusMap seeds the antivirus status map with one pending entry per
// enabled antivirus module.
func (s *Service) antivirusMap() []byte {
	pending := map[string]interface{}{}
	for _, entry := range s.catalog.AntivirusEntries() {
		pending[entry.Record.Name] = false
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// resolveType determines the file type: extension mappings first, then
// mime mappings, then the filetype modules get a chance to refine the
// result.
func (s *Service) resolveType(ctx context.Context, name, path, mime string) string {
	fileType := ""
	extensions, mimes := s.typeMappings()

	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."); ext != "" {
		fileType = extensions[ext]
	}
	if fileType == "" && mime != "" {
		base := mime
		if i := strings.Index(base, ";"); i >= 0 {
			base = strings.TrimSpace(base[:i])
		}
		fileType = mimes[base]
	}
	if fileType == "" {
		fileType = "unknown"
	}

	for _, entry := range append(s.catalog.FiletypeEntriesFor(fileType), s.catalog.FiletypeEntriesFor("*")...) {
		instance, err := s.catalog.NewInstance(entry, nil)
		if err != nil {
			klog.ErrorS(err, "could not initialize filetype module", "module", entry.Record.Name)
			continue
		}
		guesser, ok := instance.(module.FiletypeGuesser)
		if !ok {
			continue
		}
		refined, err := guesser.RecognizeFiletype(path, fileType)
		if err != nil {
			klog.ErrorS(err, "filetype module failed", "module", entry.Record.Name, "path", path)
			continue
		}
		if refined != "" {
			return refined
		}
	}
	return fileType
}

// typeMappings loads the extension and mime maps from the "types" named
// configuration. Both options hold "key = value" lines.
func (s *Service) typeMappings() (extensions, mimes map[string]string) {
	values, ok := s.catalog.NamedConfigValues("types")
	if !ok {
		return map[string]string{}, map[string]string{}
	}
	return parseMappings(values["extensions"]), parseMappings(values["mimes"])
}

func parseMappings(raw interface{}) map[string]string {
	result := map[string]string{}
	text, ok := raw.(string)
	if !ok {
		return result
	}
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}

// detectMime sniffs the mime type from the first bytes of the file.
func detectMime(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return ""
	}
	return http.DetectContentType(buf[:n])
}

func toStringArray(in []string) pq.StringArray {
	if in == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(in)
}

func ownerArray(owner string) pq.StringArray {
	if owner == "" {
		return pq.StringArray{}
	}
	return pq.StringArray{owner}
}
