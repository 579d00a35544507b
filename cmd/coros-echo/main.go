//go:build linux || darwin

// Command coros-echo is a minimal demonstration of the scheduler: one
// coroutine repeatedly writes a line to a TCP echo server, parks until the
// reply is readable, prints it, sleeps a second, and repeats a fixed number
// of times before detaching and returning.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coros-project/coros"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9096", "echo server address")
	rounds := flag.Int("rounds", 5, "number of send/recv rounds before exiting")
	flag.Parse()

	sched, err := coros.New(coros.WithLogger(coros.NewDefaultLogger(coros.LevelInfo)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "coros-echo:", err)
		os.Exit(1)
	}

	_, err = sched.Spawn(func(arg any) {
		clientLoop(sched, *addr, *rounds)
	}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "coros-echo: spawn:", err)
		os.Exit(1)
	}

	if err := sched.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "coros-echo: run:", err)
		os.Exit(1)
	}
}

func clientLoop(sched *coros.Scheduler, addr string, rounds int) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "coros-echo: dial:", err)
		coros.Detach()
		return
	}
	defer conn.Close()

	sc, err := conn.(*net.TCPConn).SyscallConn()
	if err != nil {
		fmt.Fprintln(os.Stderr, "coros-echo: syscallconn:", err)
		coros.Detach()
		return
	}

	var fd int
	_ = sc.Control(func(rawFD uintptr) { fd = int(rawFD) })
	if err := unix.SetNonblock(fd, true); err != nil {
		fmt.Fprintln(os.Stderr, "coros-echo: nonblock:", err)
		coros.Detach()
		return
	}

	send := "coros_client\r\n"
	buf := make([]byte, 1024)

	for i := 0; i < rounds; i++ {
		if _, err := unix.Write(fd, []byte(send)); err != nil {
			fmt.Fprintln(os.Stderr, "coros-echo: write:", err)
			return
		}

		if err := coros.Park(fd, coros.EventRead, 2*time.Second); err != nil {
			fmt.Fprintln(os.Stderr, "coros-echo: park:", err)
			return
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			fmt.Fprintln(os.Stderr, "coros-echo: read:", err)
			return
		}
		fmt.Printf("echo %d: %s", n, buf[:n])

		coros.Sleep(time.Second)
	}

	coros.Detach()
}
