package generations

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"modeshoot-server/modules/common/model"
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
var underscoreRunRe = regexp.MustCompile(`_+`)

// BuildArchive - 완료된 visual들을 zip으로 묶는다.
// 엔트리 경로: <collection>/<product>/<slot>.<ext>
func (s *Service) BuildArchive(ctx context.Context, generationID, userID string) ([]byte, string, error) {
	gen, err := s.Get(ctx, generationID, userID)
	if err != nil {
		return nil, "", err
	}

	var completed []model.Visual
	for _, v := range gen.Visuals {
		if v.Status == model.StatusCompleted && v.ImageURL != "" {
			completed = append(completed, v)
		}
	}

	if len(completed) == 0 {
		return nil, "", fmt.Errorf("%w: no completed visuals to download", ErrValidation)
	}

	collectionName := "collection"
	if col, err := s.store.FetchCollection(ctx, gen.CollectionID); err == nil && col != nil {
		collectionName = col.Name
	}
	productName := "product"
	if prod, err := s.store.FetchProduct(ctx, gen.ProductID); err == nil && prod != nil {
		productName = prod.Name
	}

	dir := sanitizeName(collectionName) + "/" + sanitizeName(productName)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	added := 0
	for _, v := range completed {
		data, err := s.files.DownloadImage(ctx, v.ImageURL)
		if err != nil {
			log.Printf("⚠️ Skipping %s in archive, download failed: %v", v.Type, err)
			continue
		}

		name := fmt.Sprintf("%s/%s.%s", dir, sanitizeName(v.Type), extensionFromMime(v.MimeType))
		entry, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return nil, "", fmt.Errorf("failed to create zip entry: %w", err)
		}
		if _, err := entry.Write(data); err != nil {
			zw.Close()
			return nil, "", fmt.Errorf("failed to write zip entry: %w", err)
		}
		added++
	}

	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize archive: %w", err)
	}

	if added == 0 {
		return nil, "", fmt.Errorf("%w: no completed visuals to download", ErrValidation)
	}

	filename := fmt.Sprintf("generation-%s.zip", gen.ID)
	log.Printf("📦 Archive built for %s: %d entries, %d bytes", gen.ID, added, buf.Len())
	return buf.Bytes(), filename, nil
}

// sanitizeName - 파일명 안전 문자만 남기고 underscore run 축소, 60자 제한
func sanitizeName(name string) string {
	safe := unsafeNameRe.ReplaceAllString(name, "_")
	safe = underscoreRunRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		safe = "untitled"
	}
	if len(safe) > 60 {
		safe = safe[:60]
	}
	return safe
}

// extensionFromMime - MIME type → 파일 확장자
func extensionFromMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/jpeg":
		return "jpg"
	default:
		return "jpg"
	}
}
