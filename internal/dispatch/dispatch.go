// Package dispatch routes a video reference to the retrieval method that can
// handle it and reports the outcome. Failures never escape as errors.
package dispatch

import (
	"context"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"

	"campaignvideo/internal/core/domain"
)

// delegatedHosts are hosted players that only the external tool can resolve.
var delegatedHosts = []string{"youtube", "youtu.be", "vimeo"}

// Retriever stores one reference as <targetDir>/<stem>.<ext> and returns the
// artifact path.
type Retriever interface {
	Retrieve(ctx context.Context, ref domain.VideoReference, targetDir, stem string) (string, error)
}

// Dispatcher is the DownloadDispatcher.
type Dispatcher struct {
	delegated Retriever
	direct    Retriever
	log       *logrus.Entry
}

// New creates a Dispatcher over the two retrieval variants.
func New(delegated, direct Retriever, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{delegated: delegated, direct: direct, log: log}
}

// IsDelegated reports whether videoURL is served by a hosted player.
func IsDelegated(videoURL string) bool {
	host := strings.ToLower(videoURL)
	if u, err := url.Parse(videoURL); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	for _, marker := range delegatedHosts {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

// Download retrieves ref into targetDir under stem.
func (d *Dispatcher) Download(ctx context.Context, ref domain.VideoReference, targetDir, stem string) (outcome domain.DownloadOutcome) {
	outcome.Reference = ref

	route, retriever := "direct", d.direct
	if IsDelegated(ref.URL) {
		route, retriever = "delegated", d.delegated
	}
	log := d.log.WithFields(logrus.Fields{"url": ref.URL, "route": route, "type": ref.Provenance})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("Retriever panicked: %v", r)
			outcome.Success = false
			outcome.ArtifactPath = ""
		}
	}()

	path, err := retriever.Retrieve(ctx, ref, targetDir, stem)
	if err != nil {
		log.WithError(err).Warn("Download failed")
		return outcome
	}
	log.WithField("path", path).Info("Download complete")
	outcome.Success = true
	outcome.ArtifactPath = path
	return outcome
}
