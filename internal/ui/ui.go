package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bz888/llamagate/internal/chat"
	"github.com/bz888/llamagate/internal/config"
	"github.com/bz888/llamagate/internal/logger"
)

var app *tview.Application

var (
	debugConsole *tview.TextView
	textView     *tview.TextView
	textArea     *tview.TextArea
	localLogger  *logger.Logger
)

var (
	client   *chat.Client
	streamer *chat.Streamer
	store    *chat.Store

	sendMu     sync.Mutex
	sendCancel context.CancelFunc
)

func Init() {
	app = tview.NewApplication()
	app.EnablePaste(true)
	app.EnableMouse(true)

	debugConsole = initDebugConsole()
	textView = initChatViewer()
	textArea = initChatInput()
}

func initChatViewer() *tview.TextView {
	view := tview.NewTextView().
		SetChangedFunc(func() {
			app.Draw()
		}).
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	view.SetTitle("Conversation").SetBorder(true)
	view.SetScrollable(true)
	view.ScrollToEnd()
	return view
}

func initChatInput() *tview.TextArea {
	area := tview.NewTextArea()
	area.SetTitle("Question").SetBorder(true)
	return area
}

func initDebugConsole() *tview.TextView {
	console := tview.NewTextView().
		SetChangedFunc(func() {
			app.Draw()
		}).
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	console.SetTitle("Debugger").SetBorder(true)
	console.ScrollToEnd()
	return console
}

// viewSink forwards paced appends into the message store and mirrors them
// into the conversation view.
type viewSink struct {
	store *chat.Store
}

func (s *viewSink) AppendFragment(messageID, text string) {
	s.store.AppendFragment(messageID, text)
	app.QueueUpdateDraw(func() {
		fmt.Fprintf(textView, "%s", text)
	})
}

func (s *viewSink) FinishMessage(messageID string, errored bool) {
	s.store.FinishMessage(messageID, errored)
	app.QueueUpdateDraw(func() {
		if errored {
			fmt.Fprintf(textView, "\n")
		}
		textArea.SetDisabled(false)
	})
}

// Run builds the gateway client and the streaming pipeline, then hands
// control to the terminal UI until the user quits.
func Run(cfg config.Client) error {
	localLogger = logger.NewLogger("views")

	var err error
	client, err = chat.NewClient(cfg.GatewayURL, cfg.APIKey)
	if err != nil {
		return err
	}
	store = chat.NewStore()
	streamer = chat.NewStreamer(client, store, &viewSink{store: store}, cfg.PaceDelay)

	currentModel := cfg.Model

	textView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter:
			app.SetFocus(textArea)
		}
		return event
	})

	subFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, false).
		AddItem(textArea, 8, 2, true)
	mainFlex := tview.NewFlex().
		AddItem(subFlex, 0, 2, false)

	if cfg.Dev {
		mainFlex.AddItem(debugConsole, 0, 1, true)
	}

	setInputCapture(mainFlex, &currentModel)

	return app.SetRoot(mainFlex, true).SetFocus(textArea).Run()
}

func setInputCapture(mainFlex *tview.Flex, currentModel *string) {
	textArea.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyESC:
			if abortStreaming() {
				return nil
			}
			if textView.GetText(false) != "" {
				app.SetFocus(textView)
			}
		case tcell.KeyEnter:
			content := textArea.GetText()
			if strings.TrimSpace(content) == "" {
				return nil
			}
			textArea.SetText("", true)
			textArea.SetDisabled(true)

			switch strings.TrimSpace(content) {
			case "/help":
				listHelp(content)
				textArea.SetDisabled(false)
				return event
			case "/bye":
				quitApp()
				return event
			case "/debug":
				toggleDebugConsole(mainFlex)
				textArea.SetDisabled(false)
				return event
			case "/models":
				go func() {
					createModelModal(currentModel, mainFlex)
					textArea.SetDisabled(false)
				}()
				return event
			}

			go sendPrompt(*currentModel, content)
		}
		return event
	})
}

// sendPrompt runs one streaming exchange. Input stays disabled until the
// pacing loop finishes the assistant message.
func sendPrompt(model, content string) {
	ctx, cancel := context.WithCancel(context.Background())
	sendMu.Lock()
	sendCancel = cancel
	sendMu.Unlock()

	app.QueueUpdateDraw(func() {
		fmt.Fprintln(textView, "\n\n[red::]You:[-]")
		fmt.Fprintf(textView, "%s\n\n", content)
		fmt.Fprintf(textView, "[green::]Bot:[-]\n")
	})

	localLogger.Info("Prompt sent, model: ", model)
	streamer.Send(ctx, model, content, nil)

	sendMu.Lock()
	sendCancel = nil
	sendMu.Unlock()

	if ctx.Err() != nil {
		app.QueueUpdateDraw(func() {
			fmt.Fprintf(textView, "\n[yellow::][cancelled][-]\n")
			textArea.SetDisabled(false)
		})
	}
}

// abortStreaming cancels the in-flight exchange, if any, discarding queued
// fragments. Reports whether there was one.
func abortStreaming() bool {
	sendMu.Lock()
	cancel := sendCancel
	sendCancel = nil
	sendMu.Unlock()

	if cancel == nil {
		return false
	}
	localLogger.Info("Stream aborted by user")
	cancel()
	streamer.Abort()
	return true
}

func createModal(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func createModelModal(currentModel *string, mainFlex *tview.Flex) {
	info, err := client.KeyInfo(context.Background())
	if err != nil {
		localLogger.Error("Failed to list models: ", err)
		app.QueueUpdateDraw(func() {
			fmt.Fprintf(textView, "\nFailed to list models: %v\n", err)
		})
		return
	}

	var pages *tview.Pages
	list := tview.NewList()
	list.SetBorder(true)
	list.SetTitle(fmt.Sprintf("Models (%s)", info.Project.Name))
	for i, model := range info.Models {
		model := model
		runeValue := '0' + rune(i)

		if model == *currentModel {
			list.AddItem(model, "Current LLM", runeValue, func() {
				localLogger.Info("This model is currently in use: ", model)
				fmt.Fprintf(textView, "\nAlready using model: %s\n\n", model)
			})
		} else {
			list.AddItem(model, "LLM", runeValue, func() {
				localLogger.Info("Selected: ", model)
				*currentModel = model
				fmt.Fprintf(textView, "\nUsing model: %s\n\n", model)

				pages.RemovePage("modelModal")
				textArea.SetDisabled(false)
				app.SetFocus(textArea)
			})
		}
	}
	list.AddItem("Back", "", 'q', func() {
		pages.RemovePage("modelModal")
		textArea.SetDisabled(false)
		app.SetFocus(textArea)
	})

	modal := createModal(list, 40, 10)
	pages = tview.NewPages().
		AddPage("main", mainFlex, true, true).
		AddPage("modelModal", modal, true, true)

	app.QueueUpdateDraw(func() {
		app.SetRoot(pages, true)
	})
	localLogger.Info("/models command executed")
}

func toggleDebugConsole(mainFlex *tview.Flex) {
	go func() {
		app.QueueUpdateDraw(func() {
			if mainFlex.GetItemCount() > 1 {
				mainFlex.RemoveItem(debugConsole)
				fmt.Fprintf(textView, "\nDebug console disabled\n")
			} else {
				mainFlex.AddItem(debugConsole, 0, 1, true)
				fmt.Fprintf(textView, "\nDebug console enabled\n")
			}
		})
	}()
}

func quitApp() {
	fmt.Fprintf(textView, "Bye bye\n")
	abortStreaming()
	localLogger.Close()
	app.Stop()
	log.Println("Shutting down gracefully.")
	os.Exit(0)
}

func listHelp(content string) {
	fmt.Fprintln(textView, "[red::]You:[-]")
	fmt.Fprintf(textView, "%s\n\n", content)

	fmt.Fprintf(textView, "[green::]Bot:[-]\n")
	fmt.Fprintf(textView, "Here are some commands you can use:\n")
	fmt.Fprintf(textView, "- /help: Display this help message\n")
	fmt.Fprintf(textView, "- /bye: Exit the application\n")
	fmt.Fprintf(textView, "- /debug: Toggle the debug console\n")
	fmt.Fprintf(textView, "- /models: Select between assigned models\n")
	fmt.Fprintf(textView, "- Esc: Cancel the current generation\n\n")
}

func GetDebugConsole() (*tview.TextView, error) {
	if debugConsole == nil {
		return nil, errors.New("debug console not initialized")
	}
	return debugConsole, nil
}
