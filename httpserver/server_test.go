/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package httpserver_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/rio/engine"
	. "github.com/sabouaram/rio/httpserver"
)

func okHandler() engine.Handler {
	return engine.HandlerFunc(func(r *engine.Request) engine.HandlerResult {
		resp := r.CreateResponse(200, engine.Buffered)
		resp.SetBody([]byte("ok"))
		_ = resp.Done()
		return engine.Accepted
	})
}

func testConfig(name string) ServerConfig {
	return ServerConfig{
		Name:   name,
		Listen: "127.0.0.1:0",
		Timeouts: engine.Timeouts{
			ReadNextHeader: time.Second,
			HandleRequest:  time.Second,
			WriteResponse:  time.Second,
		},
	}
}

var _ = Describe("Server", func() {
	It("starts, reports running, exposes monitor counters, and shuts down", func() {
		srv := NewServer(testConfig("api"), okHandler())
		Expect(srv.IsRunning()).To(BeFalse())

		Expect(srv.Listen()).To(BeNil())
		Expect(srv.IsRunning()).To(BeTrue())

		_, _, max, ok := srv.Monitor()
		Expect(ok).To(BeTrue())
		Expect(max).To(BeNumerically(">", 0))

		srv.Shutdown()
		Expect(srv.IsRunning()).To(BeFalse())
	})

	It("refuses a second Listen while already running", func() {
		srv := NewServer(testConfig("api"), okHandler())
		Expect(srv.Listen()).To(BeNil())
		defer srv.Shutdown()

		Expect(srv.Listen()).To(HaveOccurred())
	})

	It("refuses to start from an invalid configuration", func() {
		srv := NewServer(ServerConfig{Name: "bad"}, okHandler())
		Expect(srv.Listen()).To(HaveOccurred())
		Expect(srv.IsRunning()).To(BeFalse())
	})

	It("Restart stops and starts again cleanly", func() {
		srv := NewServer(testConfig("api"), okHandler())
		Expect(srv.Listen()).To(BeNil())
		Expect(srv.Restart()).To(BeNil())
		Expect(srv.IsRunning()).To(BeTrue())
		srv.Shutdown()
	})
})

var _ = Describe("Pool", func() {
	It("fans Listen and Shutdown out across every member", func() {
		cfgs := PoolServerConfig{testConfig("a"), testConfig("b")}
		Expect(cfgs.Validate()).To(BeNil())

		pool, err := cfgs.PoolServer(okHandler())
		Expect(err).To(BeNil())

		Expect(pool.Listen()).To(BeNil())
		Expect(pool.IsRunning()).To(BeTrue())

		a, ok := pool.Get("a")
		Expect(ok).To(BeTrue())
		Expect(a.IsRunning()).To(BeTrue())

		pool.Shutdown()
		Expect(pool.IsRunning()).To(BeFalse())
	})

	It("skips disabled members on Listen", func() {
		off := testConfig("off")
		off.Disabled = true
		pool, err := PoolServerConfig{off}.PoolServer(okHandler())
		Expect(err).To(BeNil())

		Expect(pool.Listen()).To(BeNil())
		Expect(pool.IsRunning()).To(BeFalse())
		pool.Shutdown()
	})
})
