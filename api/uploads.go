package api

import (
	"errors"
	"net/http"

	"github.com/jmcleod/quill/upload"
)

// uploadField is the multipart field carrying the files.
const uploadField = "file"

// multipartMemory is how much of a multipart body is held in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// parseUploadForm parses the multipart body before the CSRF check reads
// its token field, so an oversized body is answered with 413 rather than
// failing the token lookup.
func (a *API) parseUploadForm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := a.localizer(r)
		if a.uploads == nil {
			writeError(w, http.StatusNotFound, l.T("error.notFound"))
			return
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				a.mapError(w, r, upload.ErrTooLarge)
				return
			}
			writeError(w, http.StatusBadRequest, l.T("upload.missingFile"))
			return
		}
		defer r.MultipartForm.RemoveAll()
		next.ServeHTTP(w, r)
	})
}

// Upload handles POST /uploads. Each file under the "file" field is
// stored separately; the first failure aborts the request.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	l := a.localizer(r)
	if r.MultipartForm == nil {
		writeError(w, http.StatusBadRequest, l.T("upload.missingFile"))
		return
	}

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, l.T("upload.missingFile"))
		return
	}

	resp := UploadResponse{
		URLs:  make([]string, 0, len(headers)),
		Files: make([]upload.Result, 0, len(headers)),
	}
	for _, fh := range headers {
		if a.uploadMaxSize > 0 && fh.Size > a.uploadMaxSize {
			a.mapError(w, r, upload.ErrTooLarge)
			return
		}
		f, err := fh.Open()
		if err != nil {
			a.writeInternalError(w, r, "opening upload", err)
			return
		}
		res, err := a.uploads.Save(r.Context(), fh.Filename, f)
		f.Close()
		if err != nil {
			a.mapError(w, r, err)
			return
		}
		a.auditMutation(AuditFileUploaded, r, res.Filename)
		resp.URLs = append(resp.URLs, res.URL)
		resp.Files = append(resp.Files, res)
	}
	writeOK(w, http.StatusCreated, l.T("upload.uploaded"), resp)
}
