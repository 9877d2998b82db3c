package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/rx"
)

func newRxCommand() *cobra.Command {
	rxCmd := &cobra.Command{
		Use:   "rx",
		Short: "Prescription submissions and review",
	}
	rxCmd.AddCommand(
		newRxSubmitCommand(),
		newRxListCommand(),
		newRxReviewCommand(),
	)
	return rxCmd
}

func newRxSubmitCommand() *cobra.Command {
	var (
		fullName string
		phone    string
		notes    string
		notify   bool
	)
	submitCmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a prescription for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fileType, err := prescriptionFileType(args[0])
			if err != nil {
				return err
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			userKey, err := app.currentUserKey(cmd.Context())
			if err != nil {
				return err
			}

			submission, err := app.Rx.Submit(cmd.Context(), rx.SubmissionRequest{
				UserKey:        userKey,
				FullName:       fullName,
				Phone:          phone,
				Notes:          notes,
				FileName:       filepath.Base(args[0]),
				FileType:       fileType,
				FileData:       data,
				NotifyOnUpdate: notify,
			})
			if err != nil {
				return err
			}
			cmd.Printf("submitted %s (status %s)\n", submission.ID, submission.Status)
			return nil
		},
	}
	submitCmd.Flags().StringVar(&fullName, "name", "", "Patient full name")
	submitCmd.Flags().StringVar(&phone, "phone", "", "Contact phone number")
	submitCmd.Flags().StringVar(&notes, "notes", "", "Notes for the reviewer")
	submitCmd.Flags().BoolVar(&notify, "notify", true, "Notify on status updates")
	return submitCmd
}

func newRxListCommand() *cobra.Command {
	var mine bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List prescription submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			submissions, err := app.Rx.ListSubmissions(cmd.Context())
			if err != nil {
				return err
			}
			userKey := ""
			if mine {
				userKey, err = app.currentUserKey(cmd.Context())
				if err != nil {
					return err
				}
			}
			for _, submission := range submissions {
				if mine && submission.UserKey != userKey {
					continue
				}
				created := time.UnixMilli(submission.CreatedAt).Format(time.RFC3339)
				cmd.Printf("%s  %-10s  %-20s  %s  %s\n",
					submission.ID, submission.Status, submission.UserKey, created, submission.FileName)
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&mine, "mine", false, "Only show the current user's submissions")
	return listCmd
}

func newRxReviewCommand() *cobra.Command {
	var message string
	reviewCmd := &cobra.Command{
		Use:   "review <submission-id> <status>",
		Short: "Set a submission's review status (admin)",
		Long: "Set a submission's review status. Status is one of PENDING, APPROVED, " +
			"NEEDS_INFO, REJECTED; any status is reachable from any other. When the " +
			"submitter opted in, a notification lands in their inbox.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := rx.Status(strings.ToUpper(strings.TrimSpace(args[1])))
			switch status {
			case rx.StatusPending, rx.StatusApproved, rx.StatusNeedsInfo, rx.StatusRejected:
			default:
				return fmt.Errorf("unknown status %q", args[1])
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.Sessions.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			if user == nil || !user.IsAdmin() {
				return fmt.Errorf("review requires an admin session")
			}

			update := rx.StatusUpdate{Status: status}
			if cmd.Flags().Changed("message") {
				update.AdminMessage = &message
			}
			updated, err := app.Rx.SetStatus(cmd.Context(), args[0], update)
			if err != nil {
				return err
			}
			if updated == nil {
				return fmt.Errorf("no submission with id %s", args[0])
			}
			cmd.Printf("%s is now %s\n", updated.ID, updated.Status)
			return nil
		},
	}
	reviewCmd.Flags().StringVar(&message, "message", "", "Reviewer message shown to the submitter")
	return reviewCmd
}

// prescriptionFileType maps the upload's extension to its content type. The
// store enforces the same allow-list again on its side.
func prescriptionFileType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf", nil
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("unsupported prescription file %q: use PDF, PNG, JPEG, or WEBP", filepath.Base(path))
	}
}
