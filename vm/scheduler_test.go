package vm

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestAsyncAwait(t *testing.T) {
	expectOutput(t, `
async def add(a, b):
    await sleep(0)
    return a + b

async def main():
    x = await add(1, 2)
    y = await add(x, 10)
    return y

print(run(main()))
print(await add(2, 2))
`, "13\n4\n")
}

func TestGatherPreservesOrder(t *testing.T) {
	expectOutput(t, `
order = []
async def work(name, delay):
    await sleep(delay)
    order.append(name)
    return name.upper()

async def main():
    return await gather(work("slow", 0.03), work("fast", 0.0), work("mid", 0.01))

print(run(main()))
print(order)
`, "['SLOW', 'FAST', 'MID']\n['fast', 'mid', 'slow']\n")
}

func TestCreateTask(t *testing.T) {
	expectOutput(t, `
log = []
async def background():
    log.append("bg start")
    await sleep(0.01)
    log.append("bg end")
    return "bg"

async def main():
    task = create_task(background())
    log.append("main continues")
    await sleep(0)
    result = await task
    log.append("main done")
    return result

print(run(main()), log)
`, "bg ['main continues', 'bg start', 'bg end', 'main done']\n")
}

func TestAsyncExceptions(t *testing.T) {
	expectOutput(t, `
async def fail():
    await sleep(0)
    raise ValueError("async boom")

async def main():
    try:
        await fail()
    except ValueError as e:
        return "caught " + str(e)

print(run(main()))

async def slow():
    await sleep(10)

async def timed():
    try:
        await wait_for(slow(), 0.01)
    except TimeoutError:
        return "timeout"

print(run(timed()))
`, "caught async boom\ntimeout\n")
}

func TestSleepResult(t *testing.T) {
	expectOutput(t, `
async def main():
    return await sleep(0, "value")
print(run(main()))
`, "value\n")
}

func TestCoroutineReuse(t *testing.T) {
	err := runErr(t, `
async def once():
    return 1

c = once()
run(c)
run(c)
`)
	var re *RuntimeError
	if !errors.As(err, &re) || re.Type != "RuntimeError" {
		t.Fatalf("got %v, want RuntimeError", err)
	}
}

func TestAwaitCancellation(t *testing.T) {
	m := compile(t, `
async def forever():
    await sleep(3600)

run(forever())
`)
	v := New(WithStdout(&bytes.Buffer{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := v.Run(ctx, m)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestLoopPost(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	fut := NewFuture()
	loop := NewLoop(v)
	loop.Hold()
	go func() {
		time.Sleep(5 * time.Millisecond)
		loop.Post(func() {
			fut.Resolve(Str("from goroutine"))
			loop.Release()
		})
	}()
	got, err := loop.Await(context.Background(), fut)
	if err != nil {
		t.Fatal(err)
	}
	if got != Str("from goroutine") {
		t.Errorf("got %v", got)
	}
}

func TestLoopStalls(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	_, err := NewLoop(v).Await(context.Background(), NewFuture())
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("expected an exception for a future nothing resolves, got %v", err)
	}
}
