package workpool_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loopback-labs/e2e-agent/pkg/workpool"
)

func TestWorkpool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workpool Suite")
}

var _ = Describe("Pool", func() {
	var p *workpool.Pool

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
	})

	Describe("Submit", func() {
		It("should run work and deliver the result on the future", func() {
			p = workpool.New(1)

			future := p.Submit(func(ctx context.Context) (any, error) {
				return "done", nil
			})
			Expect(future).NotTo(BeNil())

			var result workpool.Result[any]
			Eventually(future.C(), 2*time.Second).Should(Receive(&result))
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Data).To(Equal("done"))
		})

		It("should execute multiple work items", func() {
			p = workpool.New(2)

			results := make(chan int, 3)
			for i := range 3 {
				idx := i
				p.Submit(func(ctx context.Context) (any, error) {
					results <- idx
					return idx, nil
				})
			}

			Eventually(func() int {
				return len(results)
			}, 2*time.Second, 100*time.Millisecond).Should(Equal(3))
		})

		It("should recover a panicking work function and report it as an error", func() {
			p = workpool.New(1)

			future := p.Submit(func(ctx context.Context) (any, error) {
				panic("boom")
			})

			var result workpool.Result[any]
			Eventually(future.C(), 2*time.Second).Should(Receive(&result))
			Expect(result.Err).To(MatchError(ContainSubstring("boom")))

			// The pool keeps working after a panic.
			future = p.Submit(func(ctx context.Context) (any, error) {
				return 42, nil
			})
			Eventually(future.C(), 2*time.Second).Should(Receive(&result))
			Expect(result.Data).To(Equal(42))
		})
	})

	Describe("Cancel work", func() {
		It("should cancel work via future.Stop()", func() {
			p = workpool.New(1)

			cancelled := make(chan bool, 1)
			future := p.Submit(func(ctx context.Context) (any, error) {
				select {
				case <-ctx.Done():
					cancelled <- true
					return nil, ctx.Err()
				case <-time.After(5 * time.Second):
					return "completed", nil
				}
			})

			time.Sleep(100 * time.Millisecond)
			future.Stop()

			Eventually(cancelled, 2*time.Second).Should(Receive(BeTrue()))
		})

		It("should cancel work when the pool is closed", func() {
			p = workpool.New(1)

			cancelled := make(chan bool, 1)
			p.Submit(func(ctx context.Context) (any, error) {
				select {
				case <-ctx.Done():
					cancelled <- true
					return nil, ctx.Err()
				case <-time.After(5 * time.Second):
					return "completed", nil
				}
			})

			time.Sleep(100 * time.Millisecond)
			p.Close()
			p = nil // prevent AfterEach from closing again

			Eventually(cancelled, 2*time.Second).Should(Receive(BeTrue()))
		})
	})

	Describe("Goroutine cleanup", func() {
		It("should not leak goroutines after Close under load", func() {
			base := runtime.NumGoroutine()
			p = workpool.New(4)

			work := func(ctx context.Context) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}

			for i := 0; i < 200; i++ {
				p.Submit(work)
			}

			time.Sleep(100 * time.Millisecond)
			p.Close()
			p = nil // prevent AfterEach from closing again

			Eventually(func() int {
				return runtime.NumGoroutine()
			}, 5*time.Second, 100*time.Millisecond).Should(BeNumerically("<=", base+10))
		})
	})

	Describe("Close behavior", func() {
		It("should return canceled when Submit is called after Close", func() {
			p = workpool.New(1)
			p.Close()

			future := p.Submit(func(ctx context.Context) (any, error) {
				return "done", nil
			})

			var result workpool.Result[any]
			Eventually(future.C(), 1*time.Second).Should(Receive(&result))
			Expect(result.Err).To(MatchError(context.Canceled))
		})

		It("should wait for in-flight work to finish on Close", func() {
			p = workpool.New(1)

			started := make(chan struct{})
			unblock := make(chan struct{})
			p.Submit(func(ctx context.Context) (any, error) {
				close(started)
				<-unblock
				return "done", nil
			})

			Eventually(started, 1*time.Second).Should(BeClosed())

			closeDone := make(chan struct{})
			go func() {
				p.Close()
				close(closeDone)
			}()

			Consistently(closeDone, 200*time.Millisecond).ShouldNot(BeClosed())
			close(unblock)
			Eventually(closeDone, 1*time.Second).Should(BeClosed())
			p = nil // prevent AfterEach from closing again
		})
	})
})
