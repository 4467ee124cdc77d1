// Copyright (c) 2026 VRT
// Licensed under the MIT License. See LICENSE file in the project root for details.

package nexus

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vrtdev/nexus-api-tools/internal/models"
	apperrors "github.com/vrtdev/nexus-api-tools/internal/pkg/errors"
)

// formatFilters restricts which file names count as uploadable artifacts
// per repository format. Formats without an entry accept everything.
// Repository metadata (indexes, signatures, catalogs) is regenerated by the
// destination server and must not be copied.
var formatFilters = map[models.Format]*regexp.Regexp{
	models.FormatApt:      regexp.MustCompile(`\.(deb|udeb)$`),
	models.FormatNPM:      regexp.MustCompile(`\.tgz$`),
	models.FormatMaven2:   regexp.MustCompile(`\.(jar|zip|xml|pom|war|ear)$`),
	models.FormatYum:      regexp.MustCompile(`\.(rpm|drpm)$`),
	models.FormatPyPI:     regexp.MustCompile(`\.tar\.gz$`),
	models.FormatRubygems: regexp.MustCompile(`\.gem$`),
	models.FormatNuGet:    regexp.MustCompile(`\.nupkg$`),
}

// MatchesFormat reports whether a file name passes the format's filter.
func MatchesFormat(format models.Format, name string) bool {
	filter, ok := formatFilters[format]
	if !ok {
		return true
	}
	return filter.MatchString(name)
}

// FilterAssets drops listed assets whose path fails the filter of their
// own format, as reported by the server.
func FilterAssets(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if MatchesFormat(models.Format(a.Format), a.Path) {
			out = append(out, a)
		}
	}
	return out
}

// MavenCoordinates are the upload coordinates of a maven2 artifact,
// derived from its repository path.
type MavenCoordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
	Extension  string
	Classifier string
}

// ParseMavenPath derives maven2 coordinates from a repository path of the
// form group/segments/artifactId/version/file. The group is every segment
// before the artifact directory joined with dots; a classifier is whatever
// follows "version-" in the file's base name.
func ParseMavenPath(repoPath string) (*MavenCoordinates, error) {
	parts := strings.Split(strings.TrimPrefix(repoPath, "/"), "/")
	if len(parts) < 3 {
		return nil, fmt.Errorf("cannot derive maven coordinates from path %q", repoPath)
	}

	fileName := parts[len(parts)-1]
	version := parts[len(parts)-2]
	artifactID := parts[len(parts)-3]
	groupID := strings.Join(parts[:len(parts)-3], ".")
	if groupID == "" {
		return nil, fmt.Errorf("cannot derive maven group from path %q", repoPath)
	}

	m := formatFilters[models.FormatMaven2].FindString(fileName)
	if m == "" {
		return nil, fmt.Errorf("file %q has no maven artifact extension", fileName)
	}
	extension := strings.TrimPrefix(m, ".")

	coords := &MavenCoordinates{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Version:    version,
		Extension:  extension,
	}

	baseName := strings.TrimSuffix(fileName, "."+extension)
	if idx := strings.Index(baseName, version+"-"); idx >= 0 {
		coords.Classifier = baseName[idx+len(version)+1:]
	}
	return coords, nil
}

// Upload describes one component upload.
type Upload struct {
	Format      models.Format
	RepoPath    string // Destination path inside the repository, with leading slash
	LocalFile   string // Staged file to read
	ContentType string // Detected from the file contents when empty
}

// uploadForm builds the multipart form fields and the file field name for
// an upload. The field layout differs per repository format.
func uploadForm(up Upload) (fields map[string]string, fileField string, err error) {
	dir := path.Dir(up.RepoPath)
	name := path.Base(up.RepoPath)

	switch up.Format {
	case models.FormatRaw:
		fields = map[string]string{
			"raw.directory":       dir,
			"raw.asset1.filename": name,
		}
		fileField = "raw.asset1"
	case models.FormatMaven2:
		coords, cerr := ParseMavenPath(up.RepoPath)
		if cerr != nil {
			return nil, "", cerr
		}
		fields = map[string]string{
			"maven2.groupId":          coords.GroupID,
			"maven2.artifactId":       coords.ArtifactID,
			"maven2.version":          coords.Version,
			"maven2.asset1.extension": coords.Extension,
		}
		if coords.Classifier != "" {
			fields["maven2.asset1.classifier"] = coords.Classifier
		}
		fileField = "maven2.asset1"
	case models.FormatYum:
		fields = map[string]string{
			"yum.directory":      dir,
			"yum.asset.filename": name,
		}
		fileField = "yum.asset"
	default:
		fields = map[string]string{}
		fileField = string(up.Format) + ".asset"
	}
	return fields, fileField, nil
}

// UploadComponent uploads one staged file as a component. The request body
// is streamed, so large artifacts never load into memory whole.
func (c *Client) UploadComponent(ctx context.Context, repo string, up Upload) error {
	fields, fileField, err := uploadForm(up)
	if err != nil {
		return apperrors.WrapInternal(err, fmt.Sprintf("prepare upload of %s", up.RepoPath))
	}

	contentType := up.ContentType
	if contentType == "" {
		if mt, merr := mimetype.DetectFile(up.LocalFile); merr == nil {
			contentType = mt.String()
		} else {
			contentType = "application/octet-stream"
		}
	}

	fieldNames := make([]string, 0, len(fields))
	for k := range fields {
		fieldNames = append(fieldNames, k)
	}
	sort.Strings(fieldNames)

	target := fmt.Sprintf("%s/%s/components?repository=%s", c.base, apiPath, url.QueryEscape(repo))
	op := fmt.Sprintf("upload %s to %s", up.RepoPath, repo)
	c.log.Debug("%s (content type %s)", op, contentType)

	return c.withRetry(ctx, op, func() error {
		f, err := os.Open(up.LocalFile)
		if err != nil {
			return apperrors.WrapInternal(err, fmt.Sprintf("open %s", up.LocalFile))
		}
		defer f.Close()

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			for _, k := range fieldNames {
				if err := mw.WriteField(k, fields[k]); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition",
				fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, up.RepoPath))
			header.Set("Content-Type", contentType)
			part, err := mw.CreatePart(header)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, f); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.CloseWithError(mw.Close())
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
		if err != nil {
			return apperrors.WrapInternal(err, op)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return classifyStatus(op, resp.StatusCode)
		}
		return nil
	})
}
