package watch

// Invoke runs a single listener and contains any panic it raises, returning
// the recovered value (nil on clean return). A failing listener must not take
// down its siblings or the poll loop; the caller reports the recovered value
// to its diagnostic sink.
func Invoke(fn Callback, newValue, oldValue any, path string) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	fn(newValue, oldValue, path)
	return nil
}
