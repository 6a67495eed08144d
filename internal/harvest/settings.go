package harvest

import (
	"image-harvester/internal/domain"
	"image-harvester/internal/download"
	"image-harvester/internal/reveal"
)

// RevealOptions maps settings onto the reveal protocol bounds.
func RevealOptions(s domain.Settings) reveal.Options {
	return reveal.Options{
		OpenTimeout:        s.RenderTimeout(),
		ElementWait:        s.ElementWait(),
		FilterPause:        s.FilterPause(),
		ImagesPause:        s.ImagesPause(),
		ScrollIterations:   s.ScrollIterations,
		ScrollPause:        s.ScrollPause(),
		StopOnStableHeight: s.StopOnStableHeight,
		RequireImagesView:  s.RequireImagesView,
	}
}

// DownloadOptions maps settings onto the downloader limits.
func DownloadOptions(s domain.Settings) download.Options {
	return download.Options{
		Timeout:     s.FetchTimeout(),
		Attempts:    s.FetchAttempts,
		MinBytes:    s.MinImageBytes,
		MaxBytes:    s.MaxImageBytes,
		Concurrency: s.DownloadConcurrency,
	}
}

// FromSettings builds the production pipeline around a renderer factory.
func FromSettings(s domain.Settings, factory reveal.FetcherFactory) *Pipeline {
	return NewPipeline(
		reveal.NewController(factory, RevealOptions(s)),
		download.New(DownloadOptions(s)),
	)
}
