package mapview

import (
	"context"

	"meshmap/internal/geomath"
)

// LookupAsync runs g.Geocode on its own goroutine and posts exactly one
// call of done to s. Adapters build their Geocode on top of it.
//
// With a nil or Inline scheduler there is no owner goroutine to post to, so
// the lookup runs on the caller's goroutine and done is called before
// LookupAsync returns.
func LookupAsync(ctx context.Context, g Geocoder, s Scheduler, query string, done func(geomath.LatLng, error)) {
	lookup := func() (geomath.LatLng, error) {
		if g == nil {
			return geomath.LatLng{}, ErrNoGeocoder
		}
		return g.Geocode(ctx, query)
	}
	if _, inline := s.(Inline); s == nil || inline {
		done(lookup())
		return
	}
	// Never post from here: the caller usually is the owner goroutine and
	// Post may block until it drains.
	go func() {
		ll, err := lookup()
		s.Post(func() { done(ll, err) })
	}()
}
