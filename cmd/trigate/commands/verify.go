package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trigate/trigate/pkg/cli"
	"github.com/trigate/trigate/pkg/verify"
)

var (
	verifyProfile string
	verifySubject string
	verifyClipDur int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "One-shot verification of captured files",
	Long: `Submit previously captured media files to the scoring services.

Useful for probing service behavior without running a full gate flow.

Examples:
  trigate verify face photo.jpg --profile fenny
  trigate verify voice sample.wav --profile fenny
  trigate verify lipsync clip.mjpeg clip.wav --duration 4`,
}

var verifyFaceCmd = &cobra.Command{
	Use:   "face <image.jpg>",
	Short: "Verify a face still against a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := contextClient()
		if err != nil {
			return err
		}
		image, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		printVerbose("submitting %s (%s)", args[0], cli.FormatBytesInt(len(image)))
		result, err := client.Face.Check(cmd.Context(), &verify.FaceCheckRequest{
			Image:     image,
			ProfileID: verifyProfile,
			SubjectID: verifySubject,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		printVerdict(result.Passed, result.Message)
		if result.Match != nil {
			fmt.Printf("  match: %s (%.1f%%, %s)\n",
				result.Match.Name, result.Match.Similarity, result.Match.Confidence)
		}
		return nil
	},
}

var verifyVoiceCmd = &cobra.Command{
	Use:   "voice <audio.wav>",
	Short: "Verify a voice recording against a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := contextClient()
		if err != nil {
			return err
		}
		audio, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		printVerbose("submitting %s (%s)", args[0], cli.FormatBytesInt(len(audio)))
		result, err := client.Voice.Check(cmd.Context(), &verify.VoiceCheckRequest{
			Audio:     audio,
			ProfileID: verifyProfile,
			SubjectID: verifySubject,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		printVerdict(result.Passed, result.Message)
		if result.Match != nil {
			fmt.Printf("  match: %s (%.1f%%, %s)\n",
				result.Match.Name, result.Match.Similarity, result.Match.Confidence)
		}
		return nil
	},
}

var verifyLipsyncCmd = &cobra.Command{
	Use:   "lipsync <video.mjpeg> <audio.wav>",
	Short: "Check an av clip for live speech",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := contextClient()
		if err != nil {
			return err
		}
		video, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		audio, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		printVerbose("submitting %s + %s (%s video, %s audio)", args[0], args[1],
			cli.FormatBytesInt(len(video)), cli.FormatBytesInt(len(audio)))
		result, err := client.Lipsync.Check(cmd.Context(), &verify.LipsyncCheckRequest{
			Video:    video,
			Audio:    audio,
			Duration: time.Duration(verifyClipDur) * time.Second,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		printVerdict(result.Detected, result.Message)
		fmt.Printf("  confidence: %.2f\n", result.Confidence)
		if a := result.Analysis; a != nil {
			fmt.Printf("  frames: %d  audio samples: %d  movement variance: %.6f\n",
				a.FramesProcessed, a.AudioSamples, a.MovementVariance)
		}
		return nil
	},
}

func init() {
	verifyCmd.PersistentFlags().StringVar(&verifyProfile, "profile", "", "enrolled profile to verify against")
	verifyCmd.PersistentFlags().StringVar(&verifySubject, "subject", "", "subject identifier")
	verifyLipsyncCmd.Flags().IntVar(&verifyClipDur, "duration", 4, "nominal clip duration in seconds")

	verifyCmd.AddCommand(verifyFaceCmd)
	verifyCmd.AddCommand(verifyVoiceCmd)
	verifyCmd.AddCommand(verifyLipsyncCmd)

	rootCmd.AddCommand(verifyCmd)
}

func contextClient() (*verify.Client, error) {
	ctx, err := resolveContext()
	if err != nil {
		return nil, err
	}
	return newVerifyClient(ctx)
}

func printVerdict(ok bool, message string) {
	verdict := "FAIL"
	if ok {
		verdict = "PASS"
	}
	fmt.Printf("%s  %s\n", verdict, message)
}
