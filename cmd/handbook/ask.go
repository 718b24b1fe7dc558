package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"handbook/internal/domain"
)

var (
	askCourse     string
	askCourseName string
	askDetailed   bool
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the answer with its sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, c, err := newChatService(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		reply, err := svc.Chat(ctx, domain.QueryContext{
			Message:          strings.Join(args, " "),
			CourseCode:       askCourse,
			CourseName:       askCourseName,
			Concise:          !askDetailed,
			UsePreprocessing: true,
		})
		if err != nil {
			if k := domain.KindOf(err); k == domain.KindEmptyResult || k == domain.KindValidation {
				cmd.Println(err.Error())
				return nil
			}
			return err
		}

		if askJSON {
			type source struct {
				Rank       int     `json:"rank"`
				Score      float64 `json:"score"`
				CourseCode string  `json:"course_code"`
				ChunkType  string  `json:"chunk_type"`
			}
			out := struct {
				Answer  string   `json:"answer"`
				Filter  string   `json:"filter,omitempty"`
				Sources []source `json:"sources"`
			}{Answer: reply.Answer, Filter: reply.Match.Code}
			for _, s := range reply.Sources {
				out.Sources = append(out.Sources, source{s.Rank, s.Score, s.Chunk.CourseCode, s.Chunk.Type})
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal answer: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}

		cmd.Println(reply.Answer)
		cmd.Println()
		if reply.Match.Found() {
			cmd.Printf("Filter: %s (%s)\n", reply.Match.Code, reply.Match.Source)
		}
		cmd.Println("Sources:")
		for _, s := range reply.Sources {
			cmd.Printf("  [%d] %s %-24s %.3f\n", s.Rank, s.Chunk.CourseCode, s.Chunk.Type, s.Score)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askCourse, "course", "c", "", "restrict to a course code, e.g. C04379")
	askCmd.Flags().StringVar(&askCourseName, "course-name", "", "course name hint for the answer")
	askCmd.Flags().BoolVar(&askDetailed, "detailed", false, "ask for a comprehensive rather than concise answer")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(askCmd)
}
