package pathutil

import "testing"

func BenchmarkNormalizePath(b *testing.B) {
	paths := []string{
		"/api/v1/notifications/req_1a2b3c4d5e6f",
		"/api/v1/deliveries/6f1c9a3e-5b7d-4c1e-9a0f-2d8e4b6c7a10",
		"/api/v1/notifications",
		"/api/v1/status",
		"/health",
		"/metrics",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NormalizePath(paths[i%len(paths)])
	}
}
