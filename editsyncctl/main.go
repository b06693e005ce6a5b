package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/gorilla/websocket"

	"github.com/editmirror/editmirror/editsync"
	"github.com/editmirror/editmirror/protocol"
)

const DefaultListen = "127.0.0.1:7707"

const LocalVersion = "0.0.0-local"

func main() {
	usage := fmt.Sprintf(
		`Editor state mirror control.

Runs a demo editing host next to a mirror runtime listener and
replicates host state between them, printing each delta the runtime
receives.

The default listen address is %s.

Usage:
    editsyncctl serve [--listen=<listen>] [--secret=<secret>]
    editsyncctl token --runtime_id=<runtime_id> [--secret=<secret>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --listen=<listen>          Mirror runtime listen address.
    --secret=<secret>          Token signing secret. Prompted when not given.
    --runtime_id=<runtime_id>`,
		DefaultListen,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], LocalVersion)
	if err != nil {
		panic(err)
	}

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	} else if token_, _ := opts.Bool("token"); token_ {
		token(opts)
	}
}

func requireSecret(opts docopt.Opts) []byte {
	if secretAny := opts["--secret"]; secretAny != nil {
		return []byte(secretAny.(string))
	}
	fmt.Print("signing secret: ")
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		panic(err)
	}
	return secret
}

func mintRuntimeToken(runtimeId editsync.Id, secret []byte) string {
	claims := gojwt.MapClaims{
		"runtime_id": runtimeId.String(),
		"iat":        time.Now().Unix(),
	}
	byJwt, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		panic(err)
	}
	return byJwt
}

func token(opts docopt.Opts) {
	runtimeId, err := editsync.ParseId(opts["--runtime_id"].(string))
	if err != nil {
		panic(err)
	}
	secret := requireSecret(opts)
	fmt.Printf("%s\n", mintRuntimeToken(runtimeId, secret))
}

func serve(opts docopt.Opts) {
	var listen string
	if listenAny := opts["--listen"]; listenAny != nil {
		listen = listenAny.(string)
	} else {
		listen = DefaultListen
	}
	secret := requireSecret(opts)

	cancelCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	go runMirrorRuntime(cancelCtx, listen, secret)

	runtimeId := editsync.NewId()
	auth := &editsync.RuntimeAuth{
		ByJwt:       mintRuntimeToken(runtimeId, secret),
		InstanceId:  editsync.NewId(),
		HostVersion: LocalVersion,
	}
	transport := editsync.NewMirrorTransportWithDefaults(
		cancelCtx,
		fmt.Sprintf("ws://%s/mirror", listen),
		auth,
	)
	defer transport.Close()

	for !transport.IsConnected() {
		notify := transport.StateMonitor().NotifyChannel()
		if transport.IsConnected() {
			break
		}
		select {
		case <-cancelCtx.Done():
			return
		case <-notify:
		}
	}
	fmt.Printf("runtime_id: %s\n", runtimeId)
	fmt.Printf("instance_id: %s\n", auth.InstanceId)

	documentRegistry := editsync.NewMemoryDocumentRegistry()
	editorRegistry := editsync.NewMemoryEditorRegistry()
	dirtyState := editsync.DirtyStateFunction(func(documentId editsync.BufferId) bool {
		return false
	})
	activeViewQuery := editsync.ActiveViewQueryFunction(func() (editsync.Id, bool) {
		return editsync.Id{}, false
	})

	synchronizer := editsync.NewSynchronizerWithDefaults(
		cancelCtx,
		documentRegistry,
		editorRegistry,
		dirtyState,
		activeViewQuery,
		transport,
	)
	defer synchronizer.Close()

	unsub := synchronizer.AddEditorsAddedCallback(func(editors []*editsync.ViewSnapshot) {
		for _, editor := range editors {
			fmt.Printf("[host]editor open %s\n", editor.Id)
		}
	})
	defer unsub()

	driveHost(cancelCtx, documentRegistry, editorRegistry)

	<-cancelCtx.Done()
}

// a short scripted churn: open buffers and views, move focus, close a
// buffer out from under its view
func driveHost(
	ctx context.Context,
	documentRegistry *editsync.MemoryDocumentRegistry,
	editorRegistry *editsync.MemoryEditorRegistry,
) {
	pause := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(1 * time.Second):
			return true
		}
	}

	mainGo := &editsync.Document{
		Id:         "file:///demo/main.go",
		Version:    1,
		Lines:      []string{"package main", "", "func main() {", "}"},
		Eol:        "\n",
		LanguageId: "go",
		ByteCount:  32,
	}
	readmeMd := &editsync.Document{
		Id:         "file:///demo/README.md",
		Version:    1,
		Lines:      []string{"# demo"},
		Eol:        "\n",
		LanguageId: "markdown",
		ByteCount:  6,
	}
	hugeLog := &editsync.Document{
		Id:         "file:///demo/trace.log",
		Version:    1,
		Lines:      []string{strings.Repeat("x", 80)},
		Eol:        "\n",
		LanguageId: "log",
		// over the size threshold, never synchronized
		ByteCount: 1024 * 1024 * 1024,
	}

	documentRegistry.AddDocument(mainGo)
	mainView := editsync.NewMemoryEditorView(mainGo.Id, editsync.GroupOne)
	editorRegistry.OpenView(mainView)
	editorRegistry.FocusView(mainView)
	if !pause() {
		return
	}

	documentRegistry.AddDocument(readmeMd)
	documentRegistry.AddDocument(hugeLog)
	readmeView := editsync.NewMemoryEditorView(readmeMd.Id, editsync.GroupTwo)
	editorRegistry.OpenView(readmeView)
	editorRegistry.FocusView(readmeView)
	if !pause() {
		return
	}

	// the buffer disappears before its view does; the mirror sees both
	// removals in one delta
	documentRegistry.RemoveDocument(mainGo.Id)
	editorRegistry.CloseView(mainView)
}

// runMirrorRuntime acts as the remote plugin runtime: it accepts the
// host connection, verifies the auth token, echoes the auth frame, and
// prints every delta it receives.
func runMirrorRuntime(ctx context.Context, listen string, secret []byte) {
	upgrader := &websocket.Upgrader{}

	mirror := func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		_, authBytes, err := ws.ReadMessage()
		if err != nil {
			return
		}
		message, err := protocol.DecodeFrame(authBytes)
		if err != nil {
			return
		}
		auth, ok := message.(*protocol.Auth)
		if !ok {
			return
		}
		_, err = gojwt.Parse(auth.ByJwt, func(token *gojwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			fmt.Printf("[runtime]auth error = %s\n", err)
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, authBytes); err != nil {
			return
		}

		for {
			_, frameBytes, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if len(frameBytes) == 0 {
				// ping
				continue
			}
			message, err := protocol.DecodeFrame(frameBytes)
			if err != nil {
				fmt.Printf("[runtime]frame error = %s\n", err)
				continue
			}
			if delta, ok := message.(*protocol.DocumentsAndEditorsDelta); ok {
				printDelta(delta)
			}
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mirror", mirror)
	server := &http.Server{
		Addr:    listen,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	server.ListenAndServe()
}

func printDelta(delta *protocol.DocumentsAndEditorsDelta) {
	for _, documentId := range delta.RemovedDocuments {
		fmt.Printf("[runtime]-document %s\n", documentId)
	}
	for _, document := range delta.AddedDocuments {
		fmt.Printf("[runtime]+document %s v%d (%d lines, %s)\n",
			document.Id, document.Version, len(document.Lines), document.LanguageId)
	}
	for _, editorId := range delta.RemovedEditors {
		fmt.Printf("[runtime]-editor %s@%s\n", editorId.Handle, editorId.Document)
	}
	for _, editor := range delta.AddedEditors {
		fmt.Printf("[runtime]+editor %s@%s\n", editor.Id.Handle, editor.Id.Document)
	}
	if delta.ActiveEditorChanged {
		if delta.NewActiveEditor != nil {
			fmt.Printf("[runtime]active %s@%s\n", delta.NewActiveEditor.Handle, delta.NewActiveEditor.Document)
		} else {
			fmt.Printf("[runtime]active none\n")
		}
	}
}
